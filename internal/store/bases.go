package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/arsenal/internal/model"
)

const baseColumns = `b.id, b.name, b.location, b.type, b.status, b.capacity, b.description, b.notes,
	(SELECT u.id FROM users u WHERE u.role = 'base_commander' AND u.base_id = b.id),
	b.created_by, b.updated_by, b.created_at, b.updated_at`

// CreateBase creates a new base.
func CreateBase(ctx context.Context, db *sql.DB, b *model.Base) (*model.Base, error) {
	if b.Status == "" {
		b.Status = model.BaseStatusActive
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO bases (name, location, type, status, capacity, description, notes, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.Location, b.Type, b.Status, b.Capacity,
		nullString(b.Description), nullString(b.Notes), b.CreatedBy, ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "creating base")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting base id: %w", err)
	}

	return GetBase(ctx, db, id)
}

// GetBase returns a base by ID.
func GetBase(ctx context.Context, db *sql.DB, id int64) (*model.Base, error) {
	return getBase(ctx, db, id)
}

func getBase(ctx context.Context, q querier, id int64) (*model.Base, error) {
	row := q.QueryRowContext(ctx, `SELECT `+baseColumns+` FROM bases b WHERE b.id = ?`, id)
	b, err := scanBase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting base: %w", err)
	}
	return b, nil
}

// BaseFilter narrows ListBases.
type BaseFilter struct {
	Status string
	Type   string
}

// ListBases returns bases ordered by name.
func ListBases(ctx context.Context, db *sql.DB, f BaseFilter) ([]model.Base, error) {
	query := `SELECT ` + baseColumns + ` FROM bases b WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND b.status = ?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += ` AND b.type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY b.name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bases: %w", err)
	}
	defer rows.Close()

	var bases []model.Base
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning base: %w", err)
		}
		bases = append(bases, *b)
	}
	return bases, rows.Err()
}

// UpdateBase saves the editable fields of a base.
func UpdateBase(ctx context.Context, db *sql.DB, b *model.Base) error {
	return updateBase(ctx, db, b)
}

func updateBase(ctx context.Context, q querier, b *model.Base) error {
	res, err := q.ExecContext(ctx,
		`UPDATE bases SET name = ?, location = ?, type = ?, status = ?, capacity = ?,
		        description = ?, notes = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		b.Name, b.Location, b.Type, b.Status, b.Capacity,
		nullString(b.Description), nullString(b.Notes), b.UpdatedBy, now(), b.ID,
	)
	if err != nil {
		return constraintError(err, "updating base")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating base %d: %w", b.ID, ErrNotFound)
	}
	return nil
}

// ClaimAndUpdateBase binds a base commander without a base to b and saves
// b's fields. Both happen or neither does: a failed update leaves the
// commander unbound. It fails with ErrCommanderTaken when another commander
// already holds the base.
func ClaimAndUpdateBase(ctx context.Context, db *sql.DB, userID int64, b *model.Base) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	holder, err := commanderOf(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	if holder != nil && *holder != userID {
		return ErrCommanderTaken
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET base_id = ?, updated_at = ? WHERE id = ? AND role = 'base_commander'`,
		b.ID, now(), userID,
	); err != nil {
		return constraintError(err, "claiming base")
	}

	if err := updateBase(ctx, tx, b); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing base claim: %w", err)
	}
	return nil
}

// DeleteBase removes a base. Bases still holding assets cannot be removed.
// The commander loses the base and officers whose primary base it was fall
// back to their first remaining assigned base.
func DeleteBase(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var assets int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE base_id = ?`, id,
	).Scan(&assets); err != nil {
		return fmt.Errorf("counting base assets: %w", err)
	}
	if assets > 0 {
		return fmt.Errorf("deleting base %d: %w: base still holds %d assets", id, ErrConflict, assets)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM bases WHERE id = ?`, id)
	if err != nil {
		return constraintError(err, "deleting base")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting base %d: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET base_id = (
		     SELECT ub.base_id FROM user_bases ub WHERE ub.user_id = users.id ORDER BY ub.position LIMIT 1)
		 WHERE role = 'logistics_officer' AND base_id IS NULL`,
	); err != nil {
		return fmt.Errorf("reassigning primary bases: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing base deletion: %w", err)
	}
	return nil
}

func scanBase(s scanner) (*model.Base, error) {
	b := &model.Base{}
	var desc, notes sql.NullString
	var commander, createdBy, updatedBy sql.NullInt64
	err := s.Scan(&b.ID, &b.Name, &b.Location, &b.Type, &b.Status, &b.Capacity, &desc, &notes,
		&commander, &createdBy, &updatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Description = desc.String
	b.Notes = notes.String
	b.CommanderID = int64Ptr(commander)
	b.CreatedBy = int64Ptr(createdBy)
	b.UpdatedBy = int64Ptr(updatedBy)
	return b, nil
}
