package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Machine status is a closed set of
// canonical labels; legacy free-text variants are translated at the API
// boundary before they reach storage. Serial and inventory numbers are
// unique case- and whitespace-insensitively.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'viewer' CHECK (role IN ('admin', 'manager', 'viewer')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS destinations (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS machines (
    id               INTEGER PRIMARY KEY,
    type             TEXT NOT NULL,
    reference        TEXT NOT NULL,
    serial_number    TEXT NOT NULL,
    inventory_number TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'stocké'
        CHECK (status IN ('stocké', 'affectée', 'en réparation', 'délivrée')),
    destination_id   INTEGER REFERENCES destinations(id),
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_machines_serial
    ON machines(lower(trim(serial_number)));
CREATE UNIQUE INDEX IF NOT EXISTS idx_machines_inventory
    ON machines(lower(trim(inventory_number)));

CREATE TABLE IF NOT EXISTS history (
    id          INTEGER PRIMARY KEY,
    machine_id  INTEGER NOT NULL REFERENCES machines(id),
    from_label  TEXT,
    to_label    TEXT NOT NULL,
    changed_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_machine_time
    ON history(machine_id, changed_at);
`

// migrations is a list of SQL statements applied in order after schema
// creation. Each migration must be idempotent. Append new migrations at
// the end.
var migrations = []string{}

// Migrate runs the database schema migrations.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
