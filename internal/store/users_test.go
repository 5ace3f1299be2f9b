package store

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, database, "  Alice@Example.COM ", model.RoleAdmin, nil)
	if user.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if _, ok := user.Affiliation.(model.Admin); !ok {
		t.Errorf("expected admin affiliation, got %T", user.Affiliation)
	}

	got, err := GetUserByEmail(ctx, database, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("expected user %d, got %+v", user.ID, got)
	}

	missing, err := GetUser(ctx, database, 999)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	database := db.NewTestDB(t)

	newUser(t, database, "bob@example.com", model.RoleLogisticsOfficer, nil)

	_, err := CreateUser(context.Background(), database, &model.User{
		Email: "BOB@example.com", PasswordHash: "x", FullName: "Bob", Role: model.RoleLogisticsOfficer,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCommanderPerBase(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	first := newUser(t, database, "c1@example.com", model.RoleBaseCommander, &base.ID)

	_, err := CreateUser(ctx, database, &model.User{
		Email: "c2@example.com", PasswordHash: "x", FullName: "Second", Role: model.RoleBaseCommander,
		Affiliation: model.BaseCommander{Base: &base.ID},
	})
	if !errors.Is(err, ErrCommanderTaken) {
		t.Fatalf("expected ErrCommanderTaken, got %v", err)
	}

	holder, err := CommanderOf(ctx, database, base.ID)
	if err != nil {
		t.Fatalf("CommanderOf: %v", err)
	}
	if holder == nil || *holder != first.ID {
		t.Errorf("expected commander %d, got %v", first.ID, holder)
	}

	got, _ := GetBase(ctx, database, base.ID)
	if got.CommanderID == nil || *got.CommanderID != first.ID {
		t.Errorf("expected base commander %d, got %v", first.ID, got.CommanderID)
	}
}

func TestOfficerAssignedBases(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := newBase(t, database, "Alpha")
	b := newBase(t, database, "Bravo")
	officer := newUser(t, database, "o@example.com", model.RoleLogisticsOfficer, &a.ID)

	if err := officer.AddAssignedBase(b.ID); err != nil {
		t.Fatalf("AddAssignedBase: %v", err)
	}
	if err := officer.SetPrimaryBase(b.ID); err != nil {
		t.Fatalf("SetPrimaryBase: %v", err)
	}
	if err := UpdateUser(ctx, database, officer); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, err := GetUser(ctx, database, officer.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	off, ok := got.Affiliation.(model.LogisticsOfficer)
	if !ok {
		t.Fatalf("expected officer affiliation, got %T", got.Affiliation)
	}
	if !slices.Equal(off.AssignedBases, []int64{a.ID, b.ID}) {
		t.Errorf("expected bases [%d %d], got %v", a.ID, b.ID, off.AssignedBases)
	}
	if off.PrimaryBase == nil || *off.PrimaryBase != b.ID {
		t.Errorf("expected primary base %d, got %v", b.ID, off.PrimaryBase)
	}

	users, err := ListUsers(ctx, database, UserFilter{BaseID: &a.ID})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != officer.ID {
		t.Errorf("expected the officer affiliated with Alpha, got %v", users)
	}
}

func TestListUsersByRole(t *testing.T) {
	database := db.NewTestDB(t)

	newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	newUser(t, database, "o1@example.com", model.RoleLogisticsOfficer, nil)
	newUser(t, database, "o2@example.com", model.RoleLogisticsOfficer, nil)

	users, err := ListUsers(context.Background(), database, UserFilter{Role: model.RoleLogisticsOfficer})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 officers, got %d", len(users))
	}
}

func TestDeleteLastAdmin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	admin := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	if err := DeleteUser(ctx, database, admin.ID); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}

	second := newUser(t, database, "admin2@example.com", model.RoleAdmin, nil)
	if err := DeleteUser(ctx, database, second.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if err := DeleteUser(ctx, database, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLastAdminGuardCountsInactive(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	active := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	dormant := newUser(t, database, "dormant@example.com", model.RoleAdmin, nil)
	dormant.IsActive = false
	if err := UpdateUser(ctx, database, dormant); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if err := DeleteUser(ctx, database, active.ID); err != nil {
		t.Fatalf("deleting the active admin beside an inactive one: %v", err)
	}
	if err := DeleteUser(ctx, database, dormant.ID); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("expected ErrLastAdmin, got %v", err)
	}
}

func TestDemoteOnlyAdmin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	admin := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	admin.Role = model.RoleLogisticsOfficer
	admin.Affiliation = model.LogisticsOfficer{}
	if err := UpdateUser(ctx, database, admin); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	admins, err := ListUsers(ctx, database, UserFilter{Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(admins) != 0 {
		t.Errorf("expected no admins left, got %d", len(admins))
	}
}

func TestTouchLastLogin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, database, "a@example.com", model.RoleAdmin, nil)
	if user.LastLogin != nil {
		t.Fatal("expected no last login for a new user")
	}
	if err := TouchLastLogin(ctx, database, user.ID); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	got, _ := GetUser(ctx, database, user.ID)
	if got.LastLogin == nil {
		t.Error("expected last login to be set")
	}
}
