package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// User roles.
const (
	RoleAdmin            = "admin"
	RoleBaseCommander    = "base_commander"
	RoleLogisticsOfficer = "logistics_officer"
)

// MinPasswordLength is the shortest password accepted for any account.
const MinPasswordLength = 8

// Affiliation errors.
var (
	ErrNotOfficer       = errors.New("only logistics officers can hold multiple bases")
	ErrBaseNotAssigned  = errors.New("base is not in the user's assigned bases")
	ErrAlreadyAssigned  = errors.New("base is already assigned to the user")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUnknownRole      = errors.New("unknown role")
	ErrAdminHasNoBase   = errors.New("admins are not bound to a base")
)

// User is an account of the system. Which bases a user is bound to depends
// on the role and is carried by Affiliation.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Affiliation  Affiliation
}

// Affiliation is the role-specific base binding of a user. It is one of
// Admin, BaseCommander or LogisticsOfficer.
type Affiliation interface {
	role() string
}

// Admin is not bound to any base and can reach all of them.
type Admin struct{}

// BaseCommander commands at most one base.
type BaseCommander struct {
	Base *int64
}

// LogisticsOfficer works across a set of bases, one of which may be primary.
type LogisticsOfficer struct {
	AssignedBases []int64
	PrimaryBase   *int64
}

func (Admin) role() string            { return RoleAdmin }
func (BaseCommander) role() string    { return RoleBaseCommander }
func (LogisticsOfficer) role() string { return RoleLogisticsOfficer }

// ValidRole reports whether role names one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleBaseCommander || role == RoleLogisticsOfficer
}

// NewAffiliation returns the affiliation for role bound to base, if any.
// Admins drop the base.
func NewAffiliation(role string, base *int64) (Affiliation, error) {
	switch role {
	case RoleAdmin:
		return Admin{}, nil
	case RoleBaseCommander:
		return BaseCommander{Base: base}, nil
	case RoleLogisticsOfficer:
		off := LogisticsOfficer{}
		if base != nil {
			off.AssignedBases = []int64{*base}
			off.PrimaryBase = ptr(*base)
		}
		return off, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// ValidatePassword checks that a password meets the minimum requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Bases returns every base the user is bound to. Admins return nil.
func (u *User) Bases() []int64 {
	switch a := u.Affiliation.(type) {
	case BaseCommander:
		if a.Base != nil {
			return []int64{*a.Base}
		}
	case LogisticsOfficer:
		return slices.Clone(a.AssignedBases)
	}
	return nil
}

// HomeBase is the base a user acts from by default: the commanded base for a
// commander and the primary base for an officer.
func (u *User) HomeBase() *int64 {
	switch a := u.Affiliation.(type) {
	case BaseCommander:
		return a.Base
	case LogisticsOfficer:
		return a.PrimaryBase
	}
	return nil
}

// SetBase replaces the single base binding of the user.
func (u *User) SetBase(base *int64) error {
	switch a := u.Affiliation.(type) {
	case Admin:
		if base != nil {
			return ErrAdminHasNoBase
		}
	case BaseCommander:
		a.Base = base
		u.Affiliation = a
	case LogisticsOfficer:
		if base == nil {
			u.Affiliation = LogisticsOfficer{}
			return nil
		}
		if !slices.Contains(a.AssignedBases, *base) {
			a.AssignedBases = append(slices.Clone(a.AssignedBases), *base)
		}
		a.PrimaryBase = ptr(*base)
		u.Affiliation = a
	}
	return nil
}

// AddAssignedBase adds a base to a logistics officer. The first base added
// becomes primary.
func (u *User) AddAssignedBase(base int64) error {
	a, ok := u.Affiliation.(LogisticsOfficer)
	if !ok {
		return ErrNotOfficer
	}
	if slices.Contains(a.AssignedBases, base) {
		return ErrAlreadyAssigned
	}
	a.AssignedBases = append(slices.Clone(a.AssignedBases), base)
	if a.PrimaryBase == nil {
		a.PrimaryBase = ptr(base)
	}
	u.Affiliation = a
	return nil
}

// RemoveAssignedBase removes a base from a logistics officer. When the primary
// base is removed the first remaining base takes its place.
func (u *User) RemoveAssignedBase(base int64) error {
	a, ok := u.Affiliation.(LogisticsOfficer)
	if !ok {
		return ErrNotOfficer
	}
	i := slices.Index(a.AssignedBases, base)
	if i < 0 {
		return ErrBaseNotAssigned
	}
	a.AssignedBases = slices.Delete(slices.Clone(a.AssignedBases), i, i+1)
	if a.PrimaryBase != nil && *a.PrimaryBase == base {
		a.PrimaryBase = nil
		if len(a.AssignedBases) > 0 {
			a.PrimaryBase = ptr(a.AssignedBases[0])
		}
	}
	u.Affiliation = a
	return nil
}

// SetPrimaryBase marks one of an officer's assigned bases as primary.
func (u *User) SetPrimaryBase(base int64) error {
	a, ok := u.Affiliation.(LogisticsOfficer)
	if !ok {
		return ErrNotOfficer
	}
	if !slices.Contains(a.AssignedBases, base) {
		return ErrBaseNotAssigned
	}
	a.PrimaryBase = ptr(base)
	u.Affiliation = a
	return nil
}

// MarshalJSON flattens the affiliation into base, assignedBases and
// primaryBase fields.
func (u User) MarshalJSON() ([]byte, error) {
	out := struct {
		ID            int64      `json:"id"`
		Email         string     `json:"email"`
		FullName      string     `json:"fullName"`
		Role          string     `json:"role"`
		IsActive      bool       `json:"isActive"`
		Base          *int64     `json:"base"`
		AssignedBases []int64    `json:"assignedBases"`
		PrimaryBase   *int64     `json:"primaryBase"`
		LastLogin     *time.Time `json:"lastLogin,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		UpdatedAt     time.Time  `json:"updatedAt"`
	}{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		IsActive:      u.IsActive,
		AssignedBases: []int64{},
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	switch a := u.Affiliation.(type) {
	case BaseCommander:
		out.Base = a.Base
		if a.Base != nil {
			out.AssignedBases = []int64{*a.Base}
			out.PrimaryBase = a.Base
		}
	case LogisticsOfficer:
		out.Base = a.PrimaryBase
		if a.AssignedBases != nil {
			out.AssignedBases = a.AssignedBases
		}
		out.PrimaryBase = a.PrimaryBase
	}
	return json.Marshal(out)
}

func ptr[T any](v T) *T { return &v }
