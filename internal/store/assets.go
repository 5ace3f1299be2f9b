package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/arsenal/internal/model"
)

const assetColumns = `a.id, a.name, a.type, a.serial_number, a.base_id, bs.name, a.location, a.status,
	a.description, a.quantity, a.opening_balance, a.closing_balance, a.net_movement,
	a.purchase_date, a.supplier, a.cost, a.purchase_order_number, a.last_maintenance_date,
	a.image IS NOT NULL, a.created_by, a.updated_by, a.created_at, a.updated_at`

const assetFrom = ` FROM assets a JOIN bases bs ON bs.id = a.base_id`

// CreateAsset creates an asset. Its ledger starts with no movements, so the
// closing balance equals the opening balance.
func CreateAsset(ctx context.Context, db *sql.DB, a *model.Asset) (*model.Asset, error) {
	if a.Status == "" {
		a.Status = model.AssetStatusAvailable
	}
	a.NetMovement = 0
	a.Recompute()

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO assets (name, type, serial_number, base_id, location, status, description,
		                     quantity, opening_balance, closing_balance, net_movement,
		                     purchase_date, supplier, cost, purchase_order_number, last_maintenance_date,
		                     created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(a.Name), a.Type, strings.TrimSpace(a.SerialNumber), a.BaseID, a.Location, a.Status,
		nullString(a.Description), a.Quantity, a.OpeningBalance, a.ClosingBalance, a.NetMovement,
		nullTime(a.PurchaseDate), nullString(a.PurchaseDetails.Supplier), a.PurchaseDetails.Cost,
		nullString(a.PurchaseDetails.PurchaseOrderNumber), nullTime(a.LastMaintenanceDate),
		a.CreatedBy, ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "creating asset")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset id: %w", err)
	}

	return GetAsset(ctx, db, id)
}

// GetAsset returns an asset by ID without its movement history.
func GetAsset(ctx context.Context, db *sql.DB, id int64) (*model.Asset, error) {
	return getAsset(ctx, db, id)
}

func getAsset(ctx context.Context, q querier, id int64) (*model.Asset, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assetColumns+assetFrom+` WHERE a.id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	return a, nil
}

// AssetFilter narrows ListAssets.
type AssetFilter struct {
	Scope       model.BaseScope
	Status      string
	Type        string
	Search      string
	MinQuantity *int
	MaxQuantity *int
	// Maintenance date range.
	From *time.Time
	To   *time.Time
}

// ListAssets returns assets matching the filter, newest first.
func ListAssets(ctx context.Context, db *sql.DB, f AssetFilter) ([]model.Asset, error) {
	query := `SELECT ` + assetColumns + assetFrom + ` WHERE 1=1`
	var args []any

	scope, scopeArgs := scopeClause("a.base_id", f.Scope)
	query += scope
	args = append(args, scopeArgs...)

	if f.Status != "" {
		query += ` AND a.status = ?`
		args = append(args, strings.ToLower(f.Status))
	}
	if f.Type != "" {
		query += ` AND a.type = ?`
		args = append(args, f.Type)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		query += ` AND (a.name LIKE ? ESCAPE '\' OR a.serial_number LIKE ? ESCAPE '\' OR a.description LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern)
	}
	if f.MinQuantity != nil {
		query += ` AND a.quantity >= ?`
		args = append(args, *f.MinQuantity)
	}
	if f.MaxQuantity != nil {
		query += ` AND a.quantity <= ?`
		args = append(args, *f.MaxQuantity)
	}
	if f.From != nil {
		query += ` AND a.last_maintenance_date >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		query += ` AND a.last_maintenance_date <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// UpdateAsset saves the editable fields of an asset. The net movement is owned
// by the ledger and is never written here; the closing balance is derived
// from the stored net movement.
func UpdateAsset(ctx context.Context, db *sql.DB, a *model.Asset) error {
	res, err := db.ExecContext(ctx,
		`UPDATE assets SET name = ?, type = ?, serial_number = ?, base_id = ?, location = ?, status = ?,
		        description = ?, quantity = ?, opening_balance = ?, closing_balance = ? + net_movement,
		        purchase_date = ?, supplier = ?, cost = ?, purchase_order_number = ?,
		        last_maintenance_date = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		strings.TrimSpace(a.Name), a.Type, strings.TrimSpace(a.SerialNumber), a.BaseID, a.Location, a.Status,
		nullString(a.Description), a.Quantity, a.OpeningBalance, a.OpeningBalance,
		nullTime(a.PurchaseDate), nullString(a.PurchaseDetails.Supplier), a.PurchaseDetails.Cost,
		nullString(a.PurchaseDetails.PurchaseOrderNumber), nullTime(a.LastMaintenanceDate),
		a.UpdatedBy, now(), a.ID,
	)
	if err != nil {
		return constraintError(err, "updating asset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating asset %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

// DeleteAsset removes an asset and its movement history. Assets referenced by
// transfers, assignments or purchases cannot be removed.
func DeleteAsset(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return constraintError(err, "deleting asset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting asset %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddMovement appends a movement to an asset's ledger and folds its delta into
// the net movement and closing balance. It is the only way ledger totals
// change.
func AddMovement(ctx context.Context, db *sql.DB, assetID int64, m model.Movement) (*model.Movement, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	added, err := addMovement(ctx, tx, assetID, m)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing movement: %w", err)
	}
	return added, nil
}

func addMovement(ctx context.Context, q querier, assetID int64, m model.Movement) (*model.Movement, error) {
	var a model.Asset
	err := q.QueryRowContext(ctx,
		`SELECT opening_balance, net_movement FROM assets WHERE id = ?`, assetID,
	).Scan(&a.OpeningBalance, &a.NetMovement)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("adding movement to asset %d: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading asset balance: %w", err)
	}

	a.Apply(m)

	ts := now()
	if _, err := q.ExecContext(ctx,
		`UPDATE assets SET net_movement = ?, closing_balance = ?, updated_at = ? WHERE id = ?`,
		a.NetMovement, a.ClosingBalance, ts, assetID,
	); err != nil {
		return nil, constraintError(err, "updating asset balance")
	}

	if m.Date.IsZero() {
		m.Date = ts
	}
	if m.CreatedByID != nil && *m.CreatedByID <= 0 {
		m.CreatedByID = nil
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO asset_movements (asset_id, date, kind, quantity, ref_model, ref_id, notes, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		assetID, m.Date.UTC(), m.Kind, m.Quantity, nullString(m.RefModel), m.RefID,
		nullString(m.Notes), m.CreatedByID, ts,
	)
	if err != nil {
		return nil, constraintError(err, "appending movement")
	}

	m.ID, _ = result.LastInsertId()
	m.AssetID = assetID
	m.CreatedAt = ts
	return &m, nil
}

// adjustQuantity changes an asset's on-hand quantity, refusing to go below
// zero.
func adjustQuantity(ctx context.Context, q querier, assetID int64, delta int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE assets SET quantity = quantity + ?, updated_at = ? WHERE id = ? AND quantity + ? >= 0`,
		delta, now(), assetID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjusting asset quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE id = ?`, assetID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("adjusting asset %d: %w", assetID, ErrNotFound)
		}
		return fmt.Errorf("adjusting asset %d by %d: %w", assetID, delta, ErrInsufficientQuantity)
	}
	return nil
}

// ListMovements returns an asset's movements inside an optional date range,
// newest first.
func ListMovements(ctx context.Context, db *sql.DB, assetID int64, from, to *time.Time) ([]model.Movement, error) {
	query := `SELECT id, asset_id, date, kind, quantity, ref_model, ref_id, notes, created_by, created_at
	          FROM asset_movements WHERE asset_id = ?`
	args := []any{assetID}

	if from != nil {
		query += ` AND date >= ?`
		args = append(args, from.UTC())
	}
	if to != nil {
		query += ` AND date <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	defer rows.Close()

	var movements []model.Movement
	for rows.Next() {
		var m model.Movement
		var refModel, notes sql.NullString
		var refID, createdBy sql.NullInt64
		if err := rows.Scan(&m.ID, &m.AssetID, &m.Date, &m.Kind, &m.Quantity,
			&refModel, &refID, &notes, &createdBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.RefModel = refModel.String
		m.RefID = int64Ptr(refID)
		m.Notes = notes.String
		m.CreatedByID = int64Ptr(createdBy)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// AssetPeriodMetrics summarizes an asset's movements inside a date range.
func AssetPeriodMetrics(ctx context.Context, db *sql.DB, assetID int64, from, to *time.Time) (*model.PeriodMetrics, error) {
	a, err := GetAsset(ctx, db, assetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("asset %d: %w", assetID, ErrNotFound)
	}

	movements, err := ListMovements(ctx, db, assetID, from, to)
	if err != nil {
		return nil, err
	}

	pm := model.ComputePeriodMetrics(a, movements)
	return &pm, nil
}

// SetAssetImage stores a processed asset photo and its thumbnail.
func SetAssetImage(ctx context.Context, db *sql.DB, id int64, image, thumb []byte, mime string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE assets SET image = ?, image_thumb = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		image, thumb, mime, now(), id,
	)
	if err != nil {
		return fmt.Errorf("setting asset image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("setting image of asset %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetAssetImage returns an asset photo, or its thumbnail when thumb is set.
// A nil slice means the asset has no photo.
func GetAssetImage(ctx context.Context, db *sql.DB, id int64, thumb bool) ([]byte, string, error) {
	column := "image"
	if thumb {
		column = "image_thumb"
	}

	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+column+`, image_mime FROM assets WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting asset image: %w", err)
	}
	return data, mime.String, nil
}

func scanAsset(s scanner) (*model.Asset, error) {
	a := &model.Asset{}
	var desc, supplier, po sql.NullString
	var purchaseDate, maintenance sql.NullTime
	var createdBy, updatedBy sql.NullInt64
	err := s.Scan(&a.ID, &a.Name, &a.Type, &a.SerialNumber, &a.BaseID, &a.BaseName, &a.Location, &a.Status,
		&desc, &a.Quantity, &a.OpeningBalance, &a.ClosingBalance, &a.NetMovement,
		&purchaseDate, &supplier, &a.PurchaseDetails.Cost, &po, &maintenance,
		&a.HasImage, &createdBy, &updatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Description = desc.String
	a.PurchaseDate = timePtr(purchaseDate)
	a.PurchaseDetails.Supplier = supplier.String
	a.PurchaseDetails.PurchaseOrderNumber = po.String
	a.LastMaintenanceDate = timePtr(maintenance)
	a.CreatedBy = int64Ptr(createdBy)
	a.UpdatedBy = int64Ptr(updatedBy)
	return a, nil
}

// scopeClause restricts column to the bases of a scope.
func scopeClause(column string, s model.BaseScope) (string, []any) {
	if s.All {
		return "", nil
	}
	in, args := inClause(s.Bases)
	return ` AND ` + column + ` IN ` + in, args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
