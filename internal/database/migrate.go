package database

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
)

const schemaVersion = 1

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		email VARCHAR(254) NOT NULL UNIQUE,
		phone VARCHAR(10) NOT NULL DEFAULT '',
		address VARCHAR(255) NOT NULL DEFAULT '',
		membership_status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE'
			CHECK (membership_status IN ('ACTIVE', 'INACTIVE')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		genre VARCHAR(80) NOT NULL DEFAULT '',
		isbn VARCHAR(17) NOT NULL DEFAULT '',
		year_published INTEGER NOT NULL,
		total_copies INTEGER NOT NULL,
		available_copies INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		borrow_date TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		return_date TIMESTAMPTZ,
		status VARCHAR(16) NOT NULL CHECK (status IN ('BORROWED', 'OVERDUE', 'RETURNED')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_member ON transactions(member_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_book ON transactions(book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
	`CREATE TABLE IF NOT EXISTS fines (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		fine_type VARCHAR(16) NOT NULL CHECK (fine_type IN ('LATE_RETURN', 'LOST_ITEM', 'DAMAGED_ITEM')),
		status VARCHAR(16) NOT NULL CHECK (status IN ('PENDING', 'PAID', 'CANCELLED')),
		paid_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fines_member ON fines(member_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_fines_live_late_return ON fines(transaction_id)
		WHERE fine_type = 'LATE_RETURN' AND status IN ('PENDING', 'PAID')`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		type VARCHAR(32) NOT NULL,
		subject VARCHAR(200) NOT NULL,
		message TEXT NOT NULL,
		recipient_email VARCHAR(254) NOT NULL,
		channel VARCHAR(32) NOT NULL,
		message_id VARCHAR(36) NOT NULL,
		status VARCHAR(16) NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		date_sent TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications(member_id)`,
}

// SQLite keeps time columns declared exactly TIMESTAMP so the driver parses them back into time.Time
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		membership_status TEXT NOT NULL DEFAULT 'ACTIVE'
			CHECK (membership_status IN ('ACTIVE', 'INACTIVE')),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		genre TEXT NOT NULL DEFAULT '',
		isbn TEXT NOT NULL DEFAULT '',
		year_published INTEGER NOT NULL,
		total_copies INTEGER NOT NULL,
		available_copies INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		borrow_date TIMESTAMP NOT NULL,
		due_date TIMESTAMP NOT NULL,
		return_date TIMESTAMP,
		status TEXT NOT NULL CHECK (status IN ('BORROWED', 'OVERDUE', 'RETURNED')),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_member ON transactions(member_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_book ON transactions(book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
	`CREATE TABLE IF NOT EXISTS fines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		fine_type TEXT NOT NULL CHECK (fine_type IN ('LATE_RETURN', 'LOST_ITEM', 'DAMAGED_ITEM')),
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID', 'CANCELLED')),
		paid_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fines_member ON fines(member_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_fines_live_late_return ON fines(transaction_id)
		WHERE fine_type = 'LATE_RETURN' AND status IN ('PENDING', 'PAID')`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		subject TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_email TEXT NOT NULL,
		channel TEXT NOT NULL,
		message_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		date_sent TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications(member_id)`,
}

// Migrate brings the schema up to schemaVersion. It is safe to run on every start.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO schema_meta (key, value) VALUES ('schema_version', $1)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("Database migrated from version %d to %d", current, schemaVersion)
	return nil
}

// CurrentVersion returns the recorded schema version, 0 for a fresh database
func CurrentVersion(db *sql.DB) (int, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return strconv.Atoi(value)
}
