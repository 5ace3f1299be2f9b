package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase records the procurement of an asset quantity for a base.
type Purchase struct {
	ID                  int64           `json:"id"`
	AssetID             int64           `json:"asset"`
	AssetName           string          `json:"assetName"`
	BaseID              int64           `json:"base"`
	BaseName            string          `json:"baseName"`
	PurchaseDate        time.Time       `json:"purchaseDate"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	Supplier            string          `json:"supplier"`
	PurchaseOrderNumber string          `json:"purchaseOrderNumber"`
	Status              string          `json:"status"`
	Notes               string          `json:"notes,omitempty"`
	CreatedBy           int64           `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Purchase statuses.
const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseCancelled = "cancelled"
)

// Total recomputes TotalAmount from quantity and unit price.
func (p *Purchase) Total() decimal.Decimal {
	p.TotalAmount = p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
	return p.TotalAmount
}

// CanTransitionPurchase reports whether a purchase may move between statuses.
// Only pending purchases can be completed or cancelled.
func CanTransitionPurchase(from, to string) bool {
	return from == PurchasePending && (to == PurchaseCompleted || to == PurchaseCancelled)
}
