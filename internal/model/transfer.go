package model

import (
	"slices"
	"time"
)

// Transfer moves a quantity of an asset from one base to another.
type Transfer struct {
	ID             int64      `json:"id"`
	TransferNumber string     `json:"transferNumber"`
	AssetID        int64      `json:"asset"`
	AssetName      string     `json:"assetName"`
	FromBaseID     int64      `json:"fromBase"`
	FromBaseName   string     `json:"fromBaseName"`
	ToBaseID       int64      `json:"toBase"`
	ToBaseName     string     `json:"toBaseName"`
	Quantity       int        `json:"quantity"`
	TransferDate   time.Time  `json:"transferDate"`
	Status         string     `json:"status"`
	InitiatedBy    int64      `json:"initiatedBy"`
	ApprovedBy     *int64     `json:"approvedBy,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	InTransitAt    *time.Time `json:"inTransitAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Transfer statuses.
const (
	TransferPending   = "pending"
	TransferInTransit = "in_transit"
	TransferCompleted = "completed"
	TransferCancelled = "cancelled"
)

var transferTransitions = map[string][]string{
	TransferPending:   {TransferInTransit, TransferCancelled},
	TransferInTransit: {TransferCompleted, TransferCancelled},
}

// CanTransitionTransfer reports whether a transfer may move from one status to
// another. Completed and cancelled are terminal.
func CanTransitionTransfer(from, to string) bool {
	return slices.Contains(transferTransitions[from], to)
}
