package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/libraryhub/backend/internal/config"
	_ "github.com/lib/pq"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var db *sql.DB

// PostgresDSN builds the lib/pq connection string
func PostgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

// InitDB opens the configured store and verifies the connection
func InitDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	var err error
	switch cfg.Driver {
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, PostgresDSN(cfg))
	case DriverSQLite:
		db, err = OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test connection
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == DriverPostgres {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Printf("Database connection established (%s)", cfg.Driver)
	return db, nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase opens the store and applies pending migrations, exiting on failure
func InitDatabase(cfg config.DatabaseConfig) *sql.DB {
	db, err := InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := Migrate(db, cfg.Driver); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}
