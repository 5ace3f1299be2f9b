package model

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Asset is a stock of one kind of equipment held at a base, together with its
// balance bookkeeping.
type Asset struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	SerialNumber        string          `json:"serialNumber"`
	BaseID              int64           `json:"base"`
	BaseName            string          `json:"baseName,omitempty"`
	Location            string          `json:"location"`
	Status              string          `json:"status"`
	Description         string          `json:"description,omitempty"`
	Quantity            int             `json:"quantity"`
	OpeningBalance      int             `json:"openingBalance"`
	ClosingBalance      int             `json:"closingBalance"`
	NetMovement         int             `json:"netMovement"`
	PurchaseDate        *time.Time      `json:"purchaseDate,omitempty"`
	PurchaseDetails     PurchaseDetails `json:"purchaseDetails"`
	LastMaintenanceDate *time.Time      `json:"lastMaintenanceDate,omitempty"`
	HasImage            bool            `json:"hasImage"`
	CreatedBy           *int64          `json:"createdBy"`
	UpdatedBy           *int64          `json:"updatedBy,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	MovementHistory     []Movement      `json:"movementHistory,omitempty"`
}

// PurchaseDetails describes how an asset was procured.
type PurchaseDetails struct {
	Supplier            string          `json:"supplier,omitempty"`
	Cost                decimal.Decimal `json:"cost"`
	PurchaseOrderNumber string          `json:"purchaseOrderNumber,omitempty"`
}

// Asset types.
const (
	AssetTypeWeapon     = "weapon"
	AssetTypeVehicle    = "vehicle"
	AssetTypeAmmunition = "ammunition"
	AssetTypeEquipment  = "equipment"
)

// AssetTypes lists the asset types in display order.
var AssetTypes = []string{AssetTypeWeapon, AssetTypeVehicle, AssetTypeAmmunition, AssetTypeEquipment}

// Asset statuses.
const (
	AssetStatusAvailable   = "available"
	AssetStatusAssigned    = "assigned"
	AssetStatusMaintenance = "maintenance"
	AssetStatusExpended    = "expended"
)

// AssetTypeName returns the display name of an asset type.
func AssetTypeName(t string) string {
	return cases.Title(language.English).String(t)
}

// Movement is one entry of an asset's append-only movement history.
type Movement struct {
	ID          int64     `json:"id"`
	AssetID     int64     `json:"asset"`
	Date        time.Time `json:"date"`
	Kind        string    `json:"type"`
	Quantity    int       `json:"quantity"`
	RefModel    string    `json:"referenceModel,omitempty"`
	RefID       *int64    `json:"reference,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedByID *int64    `json:"createdBy,omitempty"`
}

// Movement kinds.
const (
	MovementTransfer   = "transfer"
	MovementAssignment = "assignment"
	MovementReturn     = "return"
	MovementAdjustment = "adjustment"
)

// Movement reference models.
const (
	RefTransfer   = "Transfer"
	RefAssignment = "Assignment"
	RefPurchase   = "Purchase"
)

// Recompute restores closingBalance = openingBalance + netMovement.
func (a *Asset) Recompute() {
	a.ClosingBalance = a.OpeningBalance + a.NetMovement
}

// Apply folds a movement delta into the balance totals.
func (a *Asset) Apply(m Movement) {
	a.NetMovement += m.Quantity
	a.Recompute()
}

// PeriodMetrics summarizes an asset's movements inside a date range.
type PeriodMetrics struct {
	TotalTransfers   int `json:"totalTransfers"`
	TotalAssignments int `json:"totalAssignments"`
	TotalReturns     int `json:"totalReturns"`
	TotalAdjustments int `json:"totalAdjustments"`
	NetMovement      int `json:"netMovement"`
	OpeningBalance   int `json:"openingBalance"`
	ClosingBalance   int `json:"closingBalance"`
}

// ComputePeriodMetrics counts movements by kind and sums their deltas. The
// balances are the asset's current ones.
func ComputePeriodMetrics(a *Asset, movements []Movement) PeriodMetrics {
	pm := PeriodMetrics{
		OpeningBalance: a.OpeningBalance,
		ClosingBalance: a.ClosingBalance,
	}
	for _, m := range movements {
		switch m.Kind {
		case MovementTransfer:
			pm.TotalTransfers++
		case MovementAssignment:
			pm.TotalAssignments++
		case MovementReturn:
			pm.TotalReturns++
		case MovementAdjustment:
			pm.TotalAdjustments++
		}
		pm.NetMovement += m.Quantity
	}
	return pm
}
