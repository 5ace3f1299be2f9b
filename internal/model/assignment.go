package model

import (
	"slices"
	"time"
)

// Assignment hands a quantity of an asset to a person.
type Assignment struct {
	ID               int64      `json:"id"`
	AssignmentNumber string     `json:"assignmentNumber"`
	AssetID          int64      `json:"asset"`
	AssetName        string     `json:"assetName"`
	AssignedTo       int64      `json:"assignedTo"`
	AssignedToName   string     `json:"assignedToName"`
	AssignedBy       int64      `json:"assignedBy"`
	BaseID           int64      `json:"base"`
	BaseName         string     `json:"baseName"`
	AssignmentDate   time.Time  `json:"assignmentDate"`
	ReturnDate       *time.Time `json:"returnDate,omitempty"`
	Status           string     `json:"status"`
	Quantity         int        `json:"quantity"`
	Purpose          string     `json:"purpose"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Assignment statuses.
const (
	AssignmentActive   = "active"
	AssignmentReturned = "returned"
	AssignmentExpended = "expended"
	AssignmentLost     = "lost"
	AssignmentDamaged  = "damaged"
)

var assignmentTransitions = map[string][]string{
	AssignmentActive: {AssignmentReturned, AssignmentLost, AssignmentDamaged},
}

// CanTransitionAssignment reports whether an assignment may move from one
// status to another. Only active assignments can change.
func CanTransitionAssignment(from, to string) bool {
	return slices.Contains(assignmentTransitions[from], to)
}
