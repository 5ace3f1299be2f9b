package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS bases (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    location    TEXT NOT NULL,
    type        TEXT NOT NULL CHECK (type IN ('air', 'naval', 'army', 'joint')),
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'maintenance')),
    capacity    INTEGER NOT NULL CHECK (capacity >= 0),
    description TEXT,
    notes       TEXT,
    created_by  INTEGER REFERENCES users(id) ON DELETE SET NULL,
    updated_by  INTEGER REFERENCES users(id) ON DELETE SET NULL,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bases_name ON bases(name);

CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    full_name     TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'logistics_officer'
                  CHECK (role IN ('admin', 'base_commander', 'logistics_officer')),
    base_id       INTEGER REFERENCES bases(id) ON DELETE SET NULL,
    is_active     INTEGER NOT NULL DEFAULT 1,
    last_login    DATETIME,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

-- A base has at most one commander.
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_commander_base
    ON users(base_id) WHERE role = 'base_commander' AND base_id IS NOT NULL;

-- Bases assigned to logistics officers. users.base_id holds the primary one.
CREATE TABLE IF NOT EXISTS user_bases (
    user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    base_id  INTEGER NOT NULL REFERENCES bases(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    PRIMARY KEY (user_id, base_id)
);

CREATE TABLE IF NOT EXISTS assets (
    id                    INTEGER PRIMARY KEY,
    name                  TEXT NOT NULL,
    type                  TEXT NOT NULL CHECK (type IN ('weapon', 'vehicle', 'ammunition', 'equipment')),
    serial_number         TEXT NOT NULL,
    base_id               INTEGER NOT NULL REFERENCES bases(id),
    location              TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'available'
                          CHECK (status IN ('available', 'assigned', 'maintenance', 'expended')),
    description           TEXT,
    quantity              INTEGER NOT NULL CHECK (quantity >= 0),
    opening_balance       INTEGER NOT NULL CHECK (opening_balance >= 0),
    closing_balance       INTEGER NOT NULL,
    net_movement          INTEGER NOT NULL DEFAULT 0,
    purchase_date         DATETIME,
    supplier              TEXT,
    cost                  TEXT NOT NULL DEFAULT '0',
    purchase_order_number TEXT,
    last_maintenance_date DATETIME,
    image                 BLOB,
    image_thumb           BLOB,
    image_mime            TEXT,
    created_by            INTEGER REFERENCES users(id) ON DELETE SET NULL,
    updated_by            INTEGER REFERENCES users(id) ON DELETE SET NULL,
    created_at            DATETIME NOT NULL,
    updated_at            DATETIME NOT NULL,
    CHECK (closing_balance = opening_balance + net_movement)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_serial ON assets(serial_number);

CREATE TABLE IF NOT EXISTS asset_movements (
    id         INTEGER PRIMARY KEY,
    asset_id   INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
    date       DATETIME NOT NULL,
    kind       TEXT NOT NULL CHECK (kind IN ('transfer', 'assignment', 'return', 'adjustment')),
    quantity   INTEGER NOT NULL,
    ref_model  TEXT CHECK (ref_model IN ('Transfer', 'Assignment', 'Purchase')),
    ref_id     INTEGER,
    notes      TEXT,
    created_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
    created_at DATETIME NOT NULL
);

CREATE TRIGGER IF NOT EXISTS asset_movements_append_only
BEFORE UPDATE ON asset_movements
BEGIN
    SELECT RAISE(ABORT, 'asset movements are append-only');
END;

CREATE TABLE IF NOT EXISTS transfers (
    id              INTEGER PRIMARY KEY,
    transfer_number TEXT NOT NULL,
    asset_id        INTEGER NOT NULL REFERENCES assets(id),
    from_base_id    INTEGER NOT NULL REFERENCES bases(id),
    to_base_id      INTEGER NOT NULL REFERENCES bases(id),
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    transfer_date   DATETIME NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending'
                    CHECK (status IN ('pending', 'in_transit', 'completed', 'cancelled')),
    initiated_by    INTEGER REFERENCES users(id) ON DELETE SET NULL,
    approved_by     INTEGER REFERENCES users(id) ON DELETE SET NULL,
    reason          TEXT,
    notes           TEXT,
    in_transit_at   DATETIME,
    completed_at    DATETIME,
    cancelled_at    DATETIME,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    CHECK (from_base_id <> to_base_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_number ON transfers(transfer_number);

CREATE TABLE IF NOT EXISTS assignments (
    id                INTEGER PRIMARY KEY,
    assignment_number TEXT NOT NULL,
    asset_id          INTEGER NOT NULL REFERENCES assets(id),
    assigned_to       INTEGER NOT NULL REFERENCES users(id),
    assigned_by       INTEGER REFERENCES users(id) ON DELETE SET NULL,
    base_id           INTEGER NOT NULL REFERENCES bases(id),
    assignment_date   DATETIME NOT NULL,
    return_date       DATETIME,
    status            TEXT NOT NULL DEFAULT 'active'
                      CHECK (status IN ('active', 'returned', 'expended', 'lost', 'damaged')),
    quantity          INTEGER NOT NULL CHECK (quantity > 0),
    purpose           TEXT NOT NULL,
    notes             TEXT,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_number ON assignments(assignment_number);

CREATE TABLE IF NOT EXISTS purchases (
    id                    INTEGER PRIMARY KEY,
    asset_id              INTEGER NOT NULL REFERENCES assets(id),
    base_id               INTEGER NOT NULL REFERENCES bases(id),
    purchase_date         DATETIME NOT NULL,
    quantity              INTEGER NOT NULL CHECK (quantity > 0),
    unit_price            TEXT NOT NULL,
    total_amount          TEXT NOT NULL,
    supplier              TEXT NOT NULL,
    purchase_order_number TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'pending'
                          CHECK (status IN ('pending', 'completed', 'cancelled')),
    notes                 TEXT,
    created_by            INTEGER REFERENCES users(id) ON DELETE SET NULL,
    created_at            DATETIME NOT NULL,
    updated_at            DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_po ON purchases(purchase_order_number);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: lookup indexes for base-scoped listings and period queries.
	`CREATE INDEX IF NOT EXISTS idx_assets_base ON assets(base_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_asset_date ON asset_movements(asset_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_bases ON transfers(from_base_id, to_base_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_base_status ON assignments(base_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_base_date ON purchases(base_id, purchase_date)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist and
// applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
