package model

import "slices"

// HasAccessToBase reports whether the user may see data belonging to a base.
func HasAccessToBase(u *User, baseID int64) bool {
	if u == nil {
		return false
	}
	switch a := u.Affiliation.(type) {
	case Admin:
		return true
	case BaseCommander:
		return a.Base != nil && *a.Base == baseID
	case LogisticsOfficer:
		return slices.Contains(a.AssignedBases, baseID)
	}
	return false
}

// CanManageBase reports whether the user may modify data belonging to a base.
// The rules are currently the same as for read access.
func CanManageBase(u *User, baseID int64) bool {
	return HasAccessToBase(u, baseID)
}

// BaseScope narrows a requested base filter to what the user may see.
//
// All is true when no base restriction applies (admins without a filter).
// Otherwise Bases lists the only bases the query may touch; it is empty for
// a user without any base, which matches nothing.
type BaseScope struct {
	All   bool
	Bases []int64
}

// ScopeFor returns the base scope of a query issued by u with an optional
// requested base. Admins get the requested base. Commanders are forced to
// their own base. Officers keep the requested base only when it is assigned
// to them and are restricted to their assigned bases otherwise.
func ScopeFor(u *User, requested *int64) BaseScope {
	switch a := u.Affiliation.(type) {
	case Admin:
		if requested == nil {
			return BaseScope{All: true}
		}
		return BaseScope{Bases: []int64{*requested}}
	case BaseCommander:
		if a.Base == nil {
			return BaseScope{}
		}
		return BaseScope{Bases: []int64{*a.Base}}
	case LogisticsOfficer:
		if requested != nil && slices.Contains(a.AssignedBases, *requested) {
			return BaseScope{Bases: []int64{*requested}}
		}
		return BaseScope{Bases: slices.Clone(a.AssignedBases)}
	}
	return BaseScope{}
}

// Includes reports whether baseID falls inside the scope.
func (s BaseScope) Includes(baseID int64) bool {
	return s.All || slices.Contains(s.Bases, baseID)
}
