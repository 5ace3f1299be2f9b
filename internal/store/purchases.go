package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/arsenal/internal/model"
)

const purchaseColumns = `p.id, p.asset_id, a.name, p.base_id, b.name, p.purchase_date, p.quantity,
	p.unit_price, p.total_amount, p.supplier, p.purchase_order_number, p.status, p.notes,
	p.created_by, p.created_at, p.updated_at`

const purchaseFrom = ` FROM purchases p
	JOIN assets a ON a.id = p.asset_id
	JOIN bases b ON b.id = p.base_id`

// CreatePurchase records a pending purchase. The total amount is recomputed
// from quantity and unit price.
func CreatePurchase(ctx context.Context, db *sql.DB, p *model.Purchase) (*model.Purchase, error) {
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("creating purchase: %w: quantity must be positive", ErrValidation)
	}
	if p.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("creating purchase: %w: unit price cannot be negative", ErrValidation)
	}
	p.Total()

	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = now()
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO purchases (asset_id, base_id, purchase_date, quantity, unit_price, total_amount,
		                        supplier, purchase_order_number, status, notes, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)`,
		p.AssetID, p.BaseID, p.PurchaseDate.UTC(), p.Quantity, p.UnitPrice, p.TotalAmount,
		strings.TrimSpace(p.Supplier), strings.TrimSpace(p.PurchaseOrderNumber),
		nullString(p.Notes), nullID(p.CreatedBy), ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "creating purchase")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting purchase id: %w", err)
	}

	return GetPurchase(ctx, db, id)
}

// GetPurchase returns a purchase by ID.
func GetPurchase(ctx context.Context, db *sql.DB, id int64) (*model.Purchase, error) {
	return getPurchase(ctx, db, id)
}

func getPurchase(ctx context.Context, q querier, id int64) (*model.Purchase, error) {
	row := q.QueryRowContext(ctx, `SELECT `+purchaseColumns+purchaseFrom+` WHERE p.id = ?`, id)
	p, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting purchase: %w", err)
	}
	return p, nil
}

// PurchaseFilter narrows ListPurchases.
type PurchaseFilter struct {
	Scope  model.BaseScope
	Status string
	From   *time.Time
	To     *time.Time
}

// ListPurchases returns purchases matching the filter, newest purchase date
// first.
func ListPurchases(ctx context.Context, db *sql.DB, f PurchaseFilter) ([]model.Purchase, error) {
	query := `SELECT ` + purchaseColumns + purchaseFrom + ` WHERE 1=1`
	scope, args := scopeClause("p.base_id", f.Scope)
	query += scope

	if f.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, f.Status)
	}
	if f.From != nil {
		query += ` AND p.purchase_date >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		query += ` AND p.purchase_date <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY p.purchase_date DESC, p.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

// SetPurchaseStatus completes or cancels a pending purchase. Completion adds
// the purchased quantity to the asset and appends an adjustment movement
// referencing the purchase.
func SetPurchaseStatus(ctx context.Context, db *sql.DB, id int64, status string, actorID int64) (*model.Purchase, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := getPurchase(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("purchase %d: %w", id, ErrNotFound)
	}
	if !model.CanTransitionPurchase(p.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE purchases SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id,
	); err != nil {
		return nil, fmt.Errorf("setting purchase status: %w", err)
	}

	if status == model.PurchaseCompleted {
		if err := adjustQuantity(ctx, tx, p.AssetID, p.Quantity); err != nil {
			return nil, err
		}
		if _, err := addMovement(ctx, tx, p.AssetID, model.Movement{
			Kind:        model.MovementAdjustment,
			Quantity:    p.Quantity,
			RefModel:    model.RefPurchase,
			RefID:       &p.ID,
			Notes:       "Purchase " + p.PurchaseOrderNumber + " received",
			CreatedByID: &actorID,
		}); err != nil {
			return nil, err
		}
	}

	updated, err := getPurchase(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purchase status: %w", err)
	}
	return updated, nil
}

func scanPurchase(s scanner) (*model.Purchase, error) {
	p := &model.Purchase{}
	var notes sql.NullString
	var createdBy sql.NullInt64
	err := s.Scan(&p.ID, &p.AssetID, &p.AssetName, &p.BaseID, &p.BaseName, &p.PurchaseDate, &p.Quantity,
		&p.UnitPrice, &p.TotalAmount, &p.Supplier, &p.PurchaseOrderNumber, &p.Status, &notes,
		&createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Notes = notes.String
	p.CreatedBy = createdBy.Int64
	return p, nil
}
