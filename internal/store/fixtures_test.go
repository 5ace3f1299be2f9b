package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/erazemk/arsenal/internal/model"
)

func newBase(t *testing.T, database *sql.DB, name string) *model.Base {
	t.Helper()
	b, err := CreateBase(context.Background(), database, &model.Base{
		Name:     name,
		Location: name + " location",
		Type:     model.BaseTypeArmy,
		Capacity: 100,
	})
	if err != nil {
		t.Fatalf("CreateBase(%s): %v", name, err)
	}
	return b
}

func newUser(t *testing.T, database *sql.DB, email, role string, base *int64) *model.User {
	t.Helper()
	aff, err := model.NewAffiliation(role, base)
	if err != nil {
		t.Fatalf("NewAffiliation: %v", err)
	}
	u, err := CreateUser(context.Background(), database, &model.User{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "User " + email,
		Role:         role,
		IsActive:     true,
		Affiliation:  aff,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

var serials int

func newAsset(t *testing.T, database *sql.DB, baseID int64, quantity int) *model.Asset {
	t.Helper()
	serials++
	a, err := CreateAsset(context.Background(), database, &model.Asset{
		Name:           fmt.Sprintf("Rifle %d", serials),
		Type:           model.AssetTypeWeapon,
		SerialNumber:   fmt.Sprintf("SN-%04d", serials),
		BaseID:         baseID,
		Location:       "Armory",
		Quantity:       quantity,
		OpeningBalance: quantity,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return a
}

func mustAsset(t *testing.T, database *sql.DB, id int64) *model.Asset {
	t.Helper()
	a, err := GetAsset(context.Background(), database, id)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if a == nil {
		t.Fatalf("asset %d not found", id)
	}
	return a
}

// checkLedger verifies that the stored balance agrees with the movement
// history of an asset.
func checkLedger(t *testing.T, database *sql.DB, id int64) {
	t.Helper()
	a := mustAsset(t, database, id)
	movements, err := ListMovements(context.Background(), database, id, nil, nil)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	sum := 0
	for _, m := range movements {
		sum += m.Quantity
	}
	if a.NetMovement != sum {
		t.Errorf("net movement %d, movements sum to %d", a.NetMovement, sum)
	}
	if a.ClosingBalance != a.OpeningBalance+a.NetMovement {
		t.Errorf("closing balance %d, want %d + %d", a.ClosingBalance, a.OpeningBalance, a.NetMovement)
	}
}
