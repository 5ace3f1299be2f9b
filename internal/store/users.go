package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/arsenal/internal/model"
)

const userColumns = `id, email, password_hash, full_name, role, base_id, is_active, last_login, created_at, updated_at`

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser creates a new user together with its base affiliation.
func CreateUser(ctx context.Context, db *sql.DB, u *model.User) (*model.User, error) {
	if u.Affiliation == nil {
		aff, err := model.NewAffiliation(u.Role, nil)
		if err != nil {
			return nil, fmt.Errorf("creating user: %w: %v", ErrValidation, err)
		}
		u.Affiliation = aff
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		NormalizeEmail(u.Email), u.PasswordHash, strings.TrimSpace(u.FullName), u.Role, u.IsActive, ts, ts,
	)
	if err != nil {
		return nil, constraintError(err, "creating user")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	if err := saveAffiliation(ctx, tx, id, u.Affiliation); err != nil {
		return nil, err
	}

	created, err := getUser(ctx, tx, `id = ?`, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user: %w", err)
	}
	return created, nil
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	return getUser(ctx, db, `id = ?`, id)
}

// GetUserByEmail returns a user by email, including inactive ones.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	return getUser(ctx, db, `email = ?`, NormalizeEmail(email))
}

func getUser(ctx context.Context, q querier, where string, arg any) (*model.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, baseID, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	assigned, err := assignedBases(ctx, q, []int64{u.ID})
	if err != nil {
		return nil, err
	}
	u.Affiliation = affiliationFor(u.Role, baseID, assigned[u.ID])
	return u, nil
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role string
	// BaseID limits the result to users affiliated with the base.
	BaseID *int64
}

// ListUsers returns users matching the filter ordered by ID.
func ListUsers(ctx context.Context, db *sql.DB, f UserFilter) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any

	if f.Role != "" {
		query += ` AND role = ?`
		args = append(args, f.Role)
	}
	if f.BaseID != nil {
		query += ` AND (base_id = ? OR id IN (SELECT user_id FROM user_bases WHERE base_id = ?))`
		args = append(args, *f.BaseID, *f.BaseID)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	var users []model.User
	var baseIDs []sql.NullInt64
	for rows.Next() {
		u, baseID, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
		baseIDs = append(baseIDs, baseID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing users: %w", err)
	}
	rows.Close()

	ids := make([]int64, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	assigned, err := assignedBases(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Affiliation = affiliationFor(users[i].Role, baseIDs[i], assigned[users[i].ID])
	}
	return users, nil
}

// UpdateUser saves a user's profile fields, role, active flag and affiliation.
func UpdateUser(ctx context.Context, db *sql.DB, u *model.User) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET email = ?, full_name = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		NormalizeEmail(u.Email), strings.TrimSpace(u.FullName), u.Role, u.IsActive, now(), u.ID,
	)
	if err != nil {
		return constraintError(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating user %d: %w", u.ID, ErrNotFound)
	}

	if err := saveAffiliation(ctx, tx, u.ID, u.Affiliation); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful login.
func TouchLastLogin(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// DeleteUser removes a user. The last admin cannot be removed. Inactive
// admins count toward that guard, and role or activity changes through
// UpdateUser are not guarded at all.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var role string
	err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return fmt.Errorf("deleting user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("getting user role: %w", err)
	}

	if role == model.RoleAdmin {
		var admins int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE role = 'admin'`,
		).Scan(&admins); err != nil {
			return fmt.Errorf("counting admins: %w", err)
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return constraintError(err, "deleting user")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user deletion: %w", err)
	}
	return nil
}

// CommanderOf returns the ID of the commander of a base, or nil.
func CommanderOf(ctx context.Context, db *sql.DB, baseID int64) (*int64, error) {
	return commanderOf(ctx, db, baseID)
}

func commanderOf(ctx context.Context, q querier, baseID int64) (*int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM users WHERE role = 'base_commander' AND base_id = ?`, baseID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting base commander: %w", err)
	}
	return &id, nil
}

// saveAffiliation writes the role-specific base binding of a user.
func saveAffiliation(ctx context.Context, q querier, userID int64, aff model.Affiliation) error {
	var baseID *int64
	var assigned []int64

	switch a := aff.(type) {
	case model.Admin:
	case model.BaseCommander:
		baseID = a.Base
		if a.Base != nil {
			holder, err := commanderOf(ctx, q, *a.Base)
			if err != nil {
				return err
			}
			if holder != nil && *holder != userID {
				return ErrCommanderTaken
			}
		}
	case model.LogisticsOfficer:
		baseID = a.PrimaryBase
		assigned = a.AssignedBases
	default:
		return fmt.Errorf("saving affiliation: %w: unknown affiliation %T", ErrValidation, aff)
	}

	if _, err := q.ExecContext(ctx, `UPDATE users SET base_id = ? WHERE id = ?`, baseID, userID); err != nil {
		return constraintError(err, "saving user base")
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM user_bases WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing assigned bases: %w", err)
	}
	for i, b := range assigned {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO user_bases (user_id, base_id, position) VALUES (?, ?, ?)`,
			userID, b, i,
		); err != nil {
			return constraintError(err, "saving assigned base")
		}
	}
	return nil
}

// assignedBases loads the ordered officer bases for the given users.
func assignedBases(ctx context.Context, q querier, userIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	if len(userIDs) == 0 {
		return out, nil
	}

	in, args := inClause(userIDs)
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, base_id FROM user_bases WHERE user_id IN `+in+` ORDER BY user_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assigned bases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, baseID int64
		if err := rows.Scan(&userID, &baseID); err != nil {
			return nil, fmt.Errorf("scanning assigned base: %w", err)
		}
		out[userID] = append(out[userID], baseID)
	}
	return out, rows.Err()
}

func affiliationFor(role string, baseID sql.NullInt64, assigned []int64) model.Affiliation {
	switch role {
	case model.RoleBaseCommander:
		return model.BaseCommander{Base: int64Ptr(baseID)}
	case model.RoleLogisticsOfficer:
		return model.LogisticsOfficer{AssignedBases: assigned, PrimaryBase: int64Ptr(baseID)}
	}
	return model.Admin{}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, sql.NullInt64, error) {
	u := &model.User{}
	var baseID sql.NullInt64
	var lastLogin sql.NullTime
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &baseID,
		&u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, baseID, err
	}
	u.LastLogin = timePtr(lastLogin)
	return u, baseID, nil
}
