package model

import "time"

// Base is a military installation that holds assets.
type Base struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Capacity    int       `json:"capacity"`
	Description string    `json:"description,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CommanderID *int64    `json:"commander"`
	CreatedBy   *int64    `json:"createdBy"`
	UpdatedBy   *int64    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Base types.
const (
	BaseTypeAir   = "air"
	BaseTypeNaval = "naval"
	BaseTypeArmy  = "army"
	BaseTypeJoint = "joint"
)

// Base statuses.
const (
	BaseStatusActive      = "active"
	BaseStatusInactive    = "inactive"
	BaseStatusMaintenance = "maintenance"
)
