package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
)

func TestCreateAndListBases(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	newBase(t, database, "Charlie")
	alpha := newBase(t, database, "Alpha")
	if alpha.Status != model.BaseStatusActive {
		t.Errorf("expected default status active, got %q", alpha.Status)
	}

	bases, err := ListBases(ctx, database, BaseFilter{})
	if err != nil {
		t.Fatalf("ListBases: %v", err)
	}
	if len(bases) != 2 || bases[0].Name != "Alpha" {
		t.Errorf("expected bases ordered by name, got %v", bases)
	}

	_, err = CreateBase(ctx, database, &model.Base{Name: "Alpha", Location: "x", Type: model.BaseTypeAir})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate name, got %v", err)
	}

	_, err = CreateBase(ctx, database, &model.Base{Name: "Delta", Location: "x", Type: "space"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown type, got %v", err)
	}
}

func TestUpdateBase(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	base.Status = model.BaseStatusMaintenance
	base.Capacity = 250
	if err := UpdateBase(ctx, database, base); err != nil {
		t.Fatalf("UpdateBase: %v", err)
	}

	got, _ := GetBase(ctx, database, base.ID)
	if got.Status != model.BaseStatusMaintenance || got.Capacity != 250 {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := UpdateBase(ctx, database, &model.Base{ID: 999, Name: "x", Location: "x", Type: model.BaseTypeAir, Status: "active"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimAndUpdateBase(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	first := newUser(t, database, "c1@example.com", model.RoleBaseCommander, nil)
	second := newUser(t, database, "c2@example.com", model.RoleBaseCommander, nil)

	base.Location = "Ridge"
	if err := ClaimAndUpdateBase(ctx, database, first.ID, base); err != nil {
		t.Fatalf("ClaimAndUpdateBase: %v", err)
	}
	if err := ClaimAndUpdateBase(ctx, database, second.ID, base); !errors.Is(err, ErrCommanderTaken) {
		t.Fatalf("expected ErrCommanderTaken, got %v", err)
	}

	got, _ := GetUser(ctx, database, first.ID)
	if got.HomeBase() == nil || *got.HomeBase() != base.ID {
		t.Errorf("expected commander bound to base %d, got %v", base.ID, got.HomeBase())
	}
	if b, _ := GetBase(ctx, database, base.ID); b.Location != "Ridge" {
		t.Errorf("expected location Ridge, got %q", b.Location)
	}
}

func TestClaimRolledBackOnFailedUpdate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	newBase(t, database, "Alpha")
	charlie := newBase(t, database, "Charlie")
	commander := newUser(t, database, "c@example.com", model.RoleBaseCommander, nil)

	charlie.Name = "Alpha"
	if err := ClaimAndUpdateBase(ctx, database, commander.ID, charlie); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := GetUser(ctx, database, commander.ID)
	if got.HomeBase() != nil {
		t.Errorf("expected commander without a base, got %d", *got.HomeBase())
	}
	if b, _ := GetBase(ctx, database, charlie.ID); b.Name != "Charlie" || b.CommanderID != nil {
		t.Errorf("expected Charlie untouched, got name %q commander %v", b.Name, b.CommanderID)
	}
}

func TestDeleteBase(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	commander := newUser(t, database, "c@example.com", model.RoleBaseCommander, &alpha.ID)
	officer := newUser(t, database, "o@example.com", model.RoleLogisticsOfficer, &alpha.ID)
	if err := officer.AddAssignedBase(bravo.ID); err != nil {
		t.Fatal(err)
	}
	if err := UpdateUser(ctx, database, officer); err != nil {
		t.Fatal(err)
	}

	asset := newAsset(t, database, alpha.ID, 1)
	if err := DeleteBase(ctx, database, alpha.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while assets remain, got %v", err)
	}

	if err := DeleteAsset(ctx, database, asset.ID); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if err := DeleteBase(ctx, database, alpha.ID); err != nil {
		t.Fatalf("DeleteBase: %v", err)
	}

	c, _ := GetUser(ctx, database, commander.ID)
	if c.HomeBase() != nil {
		t.Errorf("expected commander without base, got %v", *c.HomeBase())
	}

	o, _ := GetUser(ctx, database, officer.ID)
	if o.HomeBase() == nil || *o.HomeBase() != bravo.ID {
		t.Errorf("expected officer primary base to fall back to %d, got %v", bravo.ID, o.HomeBase())
	}
	if bases := o.Bases(); len(bases) != 1 || bases[0] != bravo.ID {
		t.Errorf("expected officer bases [%d], got %v", bravo.ID, bases)
	}

	if err := DeleteBase(ctx, database, alpha.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
