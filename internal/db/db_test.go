package db

import (
	"testing"
	"time"
)

func TestEnsureSchemaIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := EnsureSchema(database); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	database := NewTestDB(t)

	var on int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("expected foreign_keys=1, got %d", on)
	}
}

func TestMovementsAreAppendOnly(t *testing.T) {
	database := NewTestDB(t)
	now := time.Now().UTC()

	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := database.Exec(query, args...); err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
	}

	mustExec(`INSERT INTO bases (id, name, location, type, capacity, created_at, updated_at)
	          VALUES (1, 'Alpha', 'North', 'army', 100, ?, ?)`, now, now)
	mustExec(`INSERT INTO assets (id, name, type, serial_number, base_id, location, quantity,
	                              opening_balance, closing_balance, created_at, updated_at)
	          VALUES (1, 'Rifle', 'weapon', 'SN-1', 1, 'Armory', 5, 5, 5, ?, ?)`, now, now)
	mustExec(`INSERT INTO asset_movements (asset_id, date, kind, quantity, created_at)
	          VALUES (1, ?, 'adjustment', 1, ?)`, now, now)

	if _, err := database.Exec(`UPDATE asset_movements SET quantity = 100`); err == nil {
		t.Error("expected update of a movement to fail")
	}
}

func TestBalanceCheckConstraint(t *testing.T) {
	database := NewTestDB(t)
	now := time.Now().UTC()

	database.Exec(`INSERT INTO bases (id, name, location, type, capacity, created_at, updated_at)
	               VALUES (1, 'Alpha', 'North', 'army', 100, ?, ?)`, now, now)

	_, err := database.Exec(`INSERT INTO assets (name, type, serial_number, base_id, location, quantity,
	                                            opening_balance, closing_balance, net_movement, created_at, updated_at)
	                         VALUES ('Rifle', 'weapon', 'SN-1', 1, 'Armory', 5, 5, 7, 0, ?, ?)`, now, now)
	if err == nil {
		t.Error("expected inconsistent balance to be rejected")
	}
}

func TestSingleCommanderPerBase(t *testing.T) {
	database := NewTestDB(t)
	now := time.Now().UTC()

	database.Exec(`INSERT INTO bases (id, name, location, type, capacity, created_at, updated_at)
	               VALUES (1, 'Alpha', 'North', 'army', 100, ?, ?)`, now, now)

	insert := `INSERT INTO users (email, password_hash, full_name, role, base_id, created_at, updated_at)
	           VALUES (?, 'x', 'Commander', 'base_commander', 1, ?, ?)`
	if _, err := database.Exec(insert, "a@alpha.mil", now, now); err != nil {
		t.Fatalf("first commander: %v", err)
	}
	if _, err := database.Exec(insert, "b@alpha.mil", now, now); err == nil {
		t.Error("expected second commander of the same base to be rejected")
	}
}
