package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/arsenal/internal/model"
)

const transferColumns = `t.id, t.transfer_number, t.asset_id, a.name, t.from_base_id, fb.name, t.to_base_id, tb.name,
	t.quantity, t.transfer_date, t.status, t.initiated_by, t.approved_by, t.reason, t.notes,
	t.in_transit_at, t.completed_at, t.cancelled_at, t.created_at, t.updated_at`

const transferFrom = ` FROM transfers t
	JOIN assets a ON a.id = t.asset_id
	JOIN bases fb ON fb.id = t.from_base_id
	JOIN bases tb ON tb.id = t.to_base_id`

// newTransferNumber returns a unique number of the form TRF-<unix ms>-<suffix>.
func newTransferNumber(ts time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("TRF-%d-%s", ts.UnixMilli(), suffix)
}

// CreateTransfer records a pending transfer. The asset must be held at the
// source base with at least the requested quantity. The quantity is checked
// but not reserved: the ledger is only touched when the transfer completes or
// is cancelled.
func CreateTransfer(ctx context.Context, db *sql.DB, t *model.Transfer) (*model.Transfer, error) {
	if t.FromBaseID == t.ToBaseID {
		return nil, fmt.Errorf("creating transfer: %w: source and destination base must differ", ErrValidation)
	}
	if t.Quantity <= 0 {
		return nil, fmt.Errorf("creating transfer: %w: quantity must be positive", ErrValidation)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var available int
	var assetBase int64
	err = tx.QueryRowContext(ctx,
		`SELECT quantity, base_id FROM assets WHERE id = ?`, t.AssetID,
	).Scan(&available, &assetBase)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d: %w", t.AssetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking available quantity: %w", err)
	}

	if assetBase != t.FromBaseID {
		return nil, fmt.Errorf("creating transfer: %w: asset is not held at the source base", ErrValidation)
	}
	if available < t.Quantity {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientQuantity, available, t.Quantity)
	}

	ts := now()
	if t.TransferDate.IsZero() {
		t.TransferDate = ts
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (transfer_number, asset_id, from_base_id, to_base_id, quantity, transfer_date,
		                        status, initiated_by, reason, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)`,
		newTransferNumber(ts), t.AssetID, t.FromBaseID, t.ToBaseID, t.Quantity, t.TransferDate.UTC(),
		nullID(t.InitiatedBy), nullString(t.Reason), nullString(t.Notes), ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "recording transfer")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer id: %w", err)
	}

	created, err := getTransfer(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}
	return created, nil
}

// GetTransfer returns a transfer by ID.
func GetTransfer(ctx context.Context, db *sql.DB, id int64) (*model.Transfer, error) {
	return getTransfer(ctx, db, id)
}

func getTransfer(ctx context.Context, q querier, id int64) (*model.Transfer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transferColumns+transferFrom+` WHERE t.id = ?`, id)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// TransferFilter narrows ListTransfers.
type TransferFilter struct {
	// Scope keeps transfers whose source or destination is in scope.
	Scope   model.BaseScope
	Status  string
	AssetID int64
	// BaseID keeps transfers touching the base on either side.
	BaseID int64
}

// ListTransfers returns transfers matching the filter, newest first.
func ListTransfers(ctx context.Context, db *sql.DB, f TransferFilter) ([]model.Transfer, error) {
	query := `SELECT ` + transferColumns + transferFrom + ` WHERE 1=1`
	var args []any

	if !f.Scope.All {
		in, inArgs := inClause(f.Scope.Bases)
		query += ` AND (t.from_base_id IN ` + in + ` OR t.to_base_id IN ` + in + `)`
		args = append(args, inArgs...)
		args = append(args, inArgs...)
	}
	if f.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	if f.AssetID > 0 {
		query += ` AND t.asset_id = ?`
		args = append(args, f.AssetID)
	}
	if f.BaseID > 0 {
		query += ` AND (t.from_base_id = ? OR t.to_base_id = ?)`
		args = append(args, f.BaseID, f.BaseID)
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// UpdateTransfer changes the notes and transfer date of a transfer. Nil
// arguments are left untouched.
func UpdateTransfer(ctx context.Context, db *sql.DB, id int64, notes *string, transferDate *time.Time) (*model.Transfer, error) {
	query := `UPDATE transfers SET updated_at = ?`
	args := []any{now()}

	if notes != nil {
		query += `, notes = ?`
		args = append(args, nullString(*notes))
	}
	if transferDate != nil {
		query += `, transfer_date = ?`
		args = append(args, transferDate.UTC())
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("updating transfer %d: %w", id, ErrNotFound)
	}
	return GetTransfer(ctx, db, id)
}

// SetTransferStatus moves a transfer along its workflow. Completing it moves
// the asset to the destination base and appends a transfer movement;
// cancelling it appends a compensating transfer movement.
func SetTransferStatus(ctx context.Context, db *sql.DB, id int64, status string, actorID int64) (*model.Transfer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransfer(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("transfer %d: %w", id, ErrNotFound)
	}
	if !model.CanTransitionTransfer(t.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	ts := now()
	switch status {
	case model.TransferInTransit:
		_, err = tx.ExecContext(ctx,
			`UPDATE transfers SET status = ?, in_transit_at = ?, updated_at = ? WHERE id = ?`,
			status, ts, ts, id)
	case model.TransferCompleted:
		_, err = tx.ExecContext(ctx,
			`UPDATE transfers SET status = ?, completed_at = ?, approved_by = ?, updated_at = ? WHERE id = ?`,
			status, ts, nullID(actorID), ts, id)
		if err != nil {
			break
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE assets SET base_id = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			t.ToBaseID, nullID(actorID), ts, t.AssetID)
		if err != nil {
			break
		}
		_, err = addMovement(ctx, tx, t.AssetID, model.Movement{
			Kind:        model.MovementTransfer,
			Quantity:    t.Quantity,
			RefModel:    model.RefTransfer,
			RefID:       &t.ID,
			Notes:       fmt.Sprintf("Transfer completed from %s to %s", t.FromBaseName, t.ToBaseName),
			CreatedByID: &actorID,
		})
	case model.TransferCancelled:
		_, err = tx.ExecContext(ctx,
			`UPDATE transfers SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
			status, ts, ts, id)
		if err != nil {
			break
		}
		_, err = addMovement(ctx, tx, t.AssetID, model.Movement{
			Kind:        model.MovementTransfer,
			Quantity:    t.Quantity,
			RefModel:    model.RefTransfer,
			RefID:       &t.ID,
			Notes:       "Transfer cancelled - quantity restored",
			CreatedByID: &actorID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("setting transfer status: %w", err)
	}

	updated, err := getTransfer(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer status: %w", err)
	}
	return updated, nil
}

// DeleteTransfer removes a pending transfer and appends a restoring transfer
// movement to the asset's ledger.
func DeleteTransfer(ctx context.Context, db *sql.DB, id int64, actorID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransfer(ctx, tx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("transfer %d: %w", id, ErrNotFound)
	}
	if t.Status != model.TransferPending {
		return fmt.Errorf("%w: only pending transfers can be deleted", ErrInvalidTransition)
	}

	if _, err := addMovement(ctx, tx, t.AssetID, model.Movement{
		Kind:        model.MovementTransfer,
		Quantity:    t.Quantity,
		RefModel:    model.RefTransfer,
		RefID:       &t.ID,
		Notes:       "Transfer deleted - quantity restored",
		CreatedByID: &actorID,
	}); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transfer deletion: %w", err)
	}
	return nil
}

func scanTransfer(s scanner) (*model.Transfer, error) {
	t := &model.Transfer{}
	var initiatedBy, approvedBy sql.NullInt64
	var reason, notes sql.NullString
	var inTransit, completed, cancelled sql.NullTime
	err := s.Scan(&t.ID, &t.TransferNumber, &t.AssetID, &t.AssetName, &t.FromBaseID, &t.FromBaseName,
		&t.ToBaseID, &t.ToBaseName, &t.Quantity, &t.TransferDate, &t.Status, &initiatedBy, &approvedBy,
		&reason, &notes, &inTransit, &completed, &cancelled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.InitiatedBy = initiatedBy.Int64
	t.ApprovedBy = int64Ptr(approvedBy)
	t.Reason = reason.String
	t.Notes = notes.String
	t.InTransitAt = timePtr(inTransit)
	t.CompletedAt = timePtr(completed)
	t.CancelledAt = timePtr(cancelled)
	return t, nil
}
