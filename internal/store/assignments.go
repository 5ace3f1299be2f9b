package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/arsenal/internal/model"
)

const assignmentColumns = `s.id, s.assignment_number, s.asset_id, a.name, s.assigned_to, u.full_name,
	s.assigned_by, s.base_id, b.name, s.assignment_date, s.return_date, s.status, s.quantity,
	s.purpose, s.notes, s.created_at, s.updated_at`

const assignmentFrom = ` FROM assignments s
	JOIN assets a ON a.id = s.asset_id
	JOIN users u ON u.id = s.assigned_to
	JOIN bases b ON b.id = s.base_id`

// nextAssignmentNumber returns ASN-YYMMDD-NNN where NNN follows the highest
// number issued that day. Deleted assignments leave gaps that are not reused.
func nextAssignmentNumber(ctx context.Context, q querier, ts time.Time) (string, error) {
	prefix := "ASN-" + ts.Format("060102") + "-"

	var last int
	if err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(substr(assignment_number, ?) AS INTEGER)), 0)
		 FROM assignments WHERE assignment_number LIKE ?`,
		len(prefix)+1, prefix+"%",
	).Scan(&last); err != nil {
		return "", fmt.Errorf("finding last assignment number: %w", err)
	}
	return fmt.Sprintf("%s%03d", prefix, last+1), nil
}

// CreateAssignment hands a quantity of an asset to a user. The asset quantity
// is decremented and an assignment movement appended in the same transaction;
// an insufficient quantity leaves everything untouched.
func CreateAssignment(ctx context.Context, db *sql.DB, s *model.Assignment) (*model.Assignment, error) {
	if s.Quantity <= 0 {
		return nil, fmt.Errorf("creating assignment: %w: quantity must be positive", ErrValidation)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var available int
	var assetBase int64
	err = tx.QueryRowContext(ctx,
		`SELECT quantity, base_id FROM assets WHERE id = ?`, s.AssetID,
	).Scan(&available, &assetBase)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d: %w", s.AssetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking available quantity: %w", err)
	}
	if assetBase != s.BaseID {
		return nil, fmt.Errorf("creating assignment: %w: asset is not held at the base", ErrValidation)
	}
	if available < s.Quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuantity, s.Quantity, available)
	}

	var assignee string
	err = tx.QueryRowContext(ctx, `SELECT full_name FROM users WHERE id = ?`, s.AssignedTo).Scan(&assignee)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("creating assignment: %w: assignee %d does not exist", ErrValidation, s.AssignedTo)
	}
	if err != nil {
		return nil, fmt.Errorf("getting assignee: %w", err)
	}

	ts := now()
	number, err := nextAssignmentNumber(ctx, tx, ts)
	if err != nil {
		return nil, err
	}
	if s.AssignmentDate.IsZero() {
		s.AssignmentDate = ts
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (assignment_number, asset_id, assigned_to, assigned_by, base_id,
		                          assignment_date, status, quantity, purpose, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?)`,
		number, s.AssetID, s.AssignedTo, nullID(s.AssignedBy), s.BaseID, s.AssignmentDate.UTC(),
		s.Quantity, s.Purpose, nullString(s.Notes), ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "recording assignment")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting assignment id: %w", err)
	}

	if err := adjustQuantity(ctx, tx, s.AssetID, -s.Quantity); err != nil {
		return nil, err
	}
	if _, err := addMovement(ctx, tx, s.AssetID, model.Movement{
		Kind:        model.MovementAssignment,
		Quantity:    -s.Quantity,
		RefModel:    model.RefAssignment,
		RefID:       &id,
		Notes:       "Assigned to " + assignee,
		CreatedByID: &s.AssignedBy,
	}); err != nil {
		return nil, err
	}

	created, err := getAssignment(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}
	return created, nil
}

// GetAssignment returns an assignment by ID.
func GetAssignment(ctx context.Context, db *sql.DB, id int64) (*model.Assignment, error) {
	return getAssignment(ctx, db, id)
}

func getAssignment(ctx context.Context, q querier, id int64) (*model.Assignment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assignmentColumns+assignmentFrom+` WHERE s.id = ?`, id)
	s, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return s, nil
}

// AssignmentFilter narrows ListAssignments and SummarizeAssignments.
type AssignmentFilter struct {
	Scope      model.BaseScope
	Status     string
	AssignedTo int64
	// Assignment date range.
	From *time.Time
	To   *time.Time
}

func (f AssignmentFilter) where() (string, []any) {
	clause, args := scopeClause("s.base_id", f.Scope)

	if f.Status != "" {
		clause += ` AND s.status = ?`
		args = append(args, f.Status)
	}
	if f.AssignedTo > 0 {
		clause += ` AND s.assigned_to = ?`
		args = append(args, f.AssignedTo)
	}
	if f.From != nil {
		clause += ` AND s.assignment_date >= ?`
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		clause += ` AND s.assignment_date <= ?`
		args = append(args, f.To.UTC())
	}
	return clause, args
}

// ListAssignments returns assignments matching the filter, most recent
// assignment date first.
func ListAssignments(ctx context.Context, db *sql.DB, f AssignmentFilter) ([]model.Assignment, error) {
	where, args := f.where()
	rows, err := db.QueryContext(ctx,
		`SELECT `+assignmentColumns+assignmentFrom+` WHERE 1=1`+where+
			` ORDER BY s.assignment_date DESC, s.id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		s, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetAssignmentStatus moves an active assignment to a terminal status.
// Returning restores the asset quantity with a return movement. Lost and
// damaged assets are written off with a negative adjustment movement.
func SetAssignmentStatus(ctx context.Context, db *sql.DB, id int64, status string, actorID int64) (*model.Assignment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := getAssignment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("assignment %d: %w", id, ErrNotFound)
	}
	if !model.CanTransitionAssignment(s.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, status)
	}

	ts := now()
	movement := model.Movement{
		RefModel:    model.RefAssignment,
		RefID:       &s.ID,
		CreatedByID: &actorID,
	}

	switch status {
	case model.AssignmentReturned:
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = ?, return_date = ?, updated_at = ? WHERE id = ?`,
			status, ts, ts, id,
		); err != nil {
			return nil, fmt.Errorf("returning assignment: %w", err)
		}
		if err := adjustQuantity(ctx, tx, s.AssetID, s.Quantity); err != nil {
			return nil, err
		}
		movement.Kind = model.MovementReturn
		movement.Quantity = s.Quantity
		movement.Notes = "Returned by " + s.AssignedToName
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = ?, updated_at = ? WHERE id = ?`,
			status, ts, id,
		); err != nil {
			return nil, fmt.Errorf("setting assignment status: %w", err)
		}
		movement.Kind = model.MovementAdjustment
		movement.Quantity = -s.Quantity
		movement.Notes = fmt.Sprintf("Asset %s - written off", status)
	}

	if _, err := addMovement(ctx, tx, s.AssetID, movement); err != nil {
		return nil, err
	}

	updated, err := getAssignment(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment status: %w", err)
	}
	return updated, nil
}

// AssignmentUpdate holds the editable fields of an assignment. Nil fields are
// left untouched.
type AssignmentUpdate struct {
	Quantity       *int
	Purpose        *string
	Notes          *string
	AssignmentDate *time.Time
	ReturnDate     *time.Time
}

// UpdateAssignment saves edits to an assignment. A quantity change on an
// active assignment moves the difference between the asset and the
// assignment and records it as an adjustment movement.
func UpdateAssignment(ctx context.Context, db *sql.DB, id int64, upd AssignmentUpdate, actorID int64) (*model.Assignment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := getAssignment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("assignment %d: %w", id, ErrNotFound)
	}

	if upd.Quantity != nil && *upd.Quantity != s.Quantity {
		if *upd.Quantity <= 0 {
			return nil, fmt.Errorf("updating assignment: %w: quantity must be positive", ErrValidation)
		}
		if s.Status != model.AssignmentActive {
			return nil, fmt.Errorf("%w: quantity of a %s assignment cannot change", ErrInvalidTransition, s.Status)
		}
		diff := s.Quantity - *upd.Quantity
		if err := adjustQuantity(ctx, tx, s.AssetID, diff); err != nil {
			return nil, err
		}
		if _, err := addMovement(ctx, tx, s.AssetID, model.Movement{
			Kind:        model.MovementAdjustment,
			Quantity:    diff,
			RefModel:    model.RefAssignment,
			RefID:       &s.ID,
			Notes:       fmt.Sprintf("Quantity adjusted from %d to %d", s.Quantity, *upd.Quantity),
			CreatedByID: &actorID,
		}); err != nil {
			return nil, err
		}
		s.Quantity = *upd.Quantity
	}

	if upd.Purpose != nil {
		s.Purpose = *upd.Purpose
	}
	if upd.Notes != nil {
		s.Notes = *upd.Notes
	}
	if upd.AssignmentDate != nil {
		s.AssignmentDate = *upd.AssignmentDate
	}
	if upd.ReturnDate != nil {
		s.ReturnDate = upd.ReturnDate
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET quantity = ?, purpose = ?, notes = ?, assignment_date = ?, return_date = ?, updated_at = ?
		 WHERE id = ?`,
		s.Quantity, s.Purpose, nullString(s.Notes), s.AssignmentDate.UTC(), nullTime(s.ReturnDate), now(), id,
	); err != nil {
		return nil, constraintError(err, "updating assignment")
	}

	updated, err := getAssignment(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}
	return updated, nil
}

// DeleteAssignment removes an assignment and restores its quantity to the
// asset with an adjustment movement, whatever the assignment's status. For a
// returned assignment this restores the quantity a second time.
func DeleteAssignment(ctx context.Context, db *sql.DB, id int64, actorID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := getAssignment(ctx, tx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("assignment %d: %w", id, ErrNotFound)
	}

	if err := adjustQuantity(ctx, tx, s.AssetID, s.Quantity); err != nil {
		return err
	}
	if _, err := addMovement(ctx, tx, s.AssetID, model.Movement{
		Kind:        model.MovementAdjustment,
		Quantity:    s.Quantity,
		RefModel:    model.RefAssignment,
		RefID:       &s.ID,
		Notes:       "Assignment deleted - quantity restored",
		CreatedByID: &actorID,
	}); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignment deletion: %w", err)
	}
	return nil
}

// AssignmentSummary aggregates assignment quantities.
type AssignmentSummary struct {
	TotalAssignments int                          `json:"totalAssignments"`
	TotalQuantity    int                          `json:"totalQuantity"`
	ByStatus         map[string]int               `json:"byStatus"`
	ByBase           map[int64]*BaseAssignments   `json:"byBase"`
	ByPersonnel      map[int64]*PersonAssignments `json:"byPersonnel"`
}

// BaseAssignments is the per-base part of an AssignmentSummary.
type BaseAssignments struct {
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Active   int    `json:"active"`
	Returned int    `json:"returned"`
}

// PersonAssignments is the per-assignee part of an AssignmentSummary.
type PersonAssignments struct {
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Active int    `json:"active"`
}

// SummarizeAssignments aggregates the assignments matching the filter.
func SummarizeAssignments(ctx context.Context, db *sql.DB, f AssignmentFilter) (*AssignmentSummary, error) {
	assignments, err := ListAssignments(ctx, db, f)
	if err != nil {
		return nil, err
	}

	sum := &AssignmentSummary{
		TotalAssignments: len(assignments),
		ByStatus:         map[string]int{},
		ByBase:           map[int64]*BaseAssignments{},
		ByPersonnel:      map[int64]*PersonAssignments{},
	}
	for _, s := range assignments {
		sum.TotalQuantity += s.Quantity
		sum.ByStatus[s.Status]++

		b, ok := sum.ByBase[s.BaseID]
		if !ok {
			b = &BaseAssignments{Name: s.BaseName}
			sum.ByBase[s.BaseID] = b
		}
		b.Total += s.Quantity

		p, ok := sum.ByPersonnel[s.AssignedTo]
		if !ok {
			p = &PersonAssignments{Name: s.AssignedToName}
			sum.ByPersonnel[s.AssignedTo] = p
		}
		p.Total += s.Quantity

		switch s.Status {
		case model.AssignmentActive:
			b.Active += s.Quantity
			p.Active += s.Quantity
		case model.AssignmentReturned:
			b.Returned += s.Quantity
		}
	}
	return sum, nil
}

func scanAssignment(sc scanner) (*model.Assignment, error) {
	s := &model.Assignment{}
	var assignedBy sql.NullInt64
	var returnDate sql.NullTime
	var notes sql.NullString
	err := sc.Scan(&s.ID, &s.AssignmentNumber, &s.AssetID, &s.AssetName, &s.AssignedTo, &s.AssignedToName,
		&assignedBy, &s.BaseID, &s.BaseName, &s.AssignmentDate, &returnDate, &s.Status, &s.Quantity,
		&s.Purpose, &notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.AssignedBy = assignedBy.Int64
	s.ReturnDate = timePtr(returnDate)
	s.Notes = notes.String
	return s, nil
}
