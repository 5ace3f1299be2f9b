package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/arsenal/internal/model"
)

// InventoryMetrics counts asset records in a scope.
type InventoryMetrics struct {
	OpeningBalance int `json:"openingBalance"`
	ClosingBalance int `json:"closingBalance"`
	NetMovement    int `json:"netMovement"`
	Assigned       int `json:"assigned"`
	Expended       int `json:"expended"`
}

// GetInventoryMetrics counts the assets in scope. The opening balance counts
// assets created before the start of the current month and the closing
// balance counts all of them.
func GetInventoryMetrics(ctx context.Context, db *sql.DB, scope model.BaseScope) (*InventoryMetrics, error) {
	where, args := scopeClause("base_id", scope)
	ts := now()
	monthStart := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)

	var m InventoryMetrics
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(created_at < ?), 0),
		        COALESCE(SUM(status = 'assigned'), 0),
		        COALESCE(SUM(status = 'expended'), 0)
		 FROM assets WHERE 1=1`+where,
		append([]any{monthStart}, args...)...,
	).Scan(&m.ClosingBalance, &m.OpeningBalance, &m.Assigned, &m.Expended)
	if err != nil {
		return nil, fmt.Errorf("counting assets: %w", err)
	}
	m.NetMovement = m.ClosingBalance - m.OpeningBalance
	return &m, nil
}

// InventorySummary aggregates asset quantities.
type InventorySummary struct {
	TotalAssets   int                      `json:"totalAssets"`
	TotalQuantity int                      `json:"totalQuantity"`
	TotalValue    decimal.Decimal          `json:"totalValue"`
	ByType        map[string]int           `json:"byType"`
	ByStatus      map[string]int           `json:"byStatus"`
	ByBase        map[int64]*BaseInventory `json:"byBase"`
}

// BaseInventory is the per-base part of an InventorySummary.
type BaseInventory struct {
	Name     string         `json:"name"`
	Total    int            `json:"total"`
	ByType   map[string]int `json:"byType"`
	ByStatus map[string]int `json:"byStatus"`
}

// SummarizeInventory sums asset quantities in scope by type, status and base.
// The total value is the sum of cost times quantity.
func SummarizeInventory(ctx context.Context, db *sql.DB, scope model.BaseScope) (*InventorySummary, error) {
	assets, err := ListAssets(ctx, db, AssetFilter{Scope: scope})
	if err != nil {
		return nil, err
	}

	sum := &InventorySummary{
		TotalAssets: len(assets),
		TotalValue:  decimal.Zero,
		ByType:      map[string]int{},
		ByStatus:    map[string]int{},
		ByBase:      map[int64]*BaseInventory{},
	}
	for _, a := range assets {
		sum.TotalQuantity += a.Quantity
		sum.TotalValue = sum.TotalValue.Add(a.PurchaseDetails.Cost.Mul(decimal.NewFromInt(int64(a.Quantity))))
		sum.ByType[a.Type] += a.Quantity
		sum.ByStatus[a.Status] += a.Quantity

		b, ok := sum.ByBase[a.BaseID]
		if !ok {
			b = &BaseInventory{Name: a.BaseName, ByType: map[string]int{}, ByStatus: map[string]int{}}
			sum.ByBase[a.BaseID] = b
		}
		b.Total += a.Quantity
		b.ByType[a.Type] += a.Quantity
		b.ByStatus[a.Status] += a.Quantity
	}
	return sum, nil
}
