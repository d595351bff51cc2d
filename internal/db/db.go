// internal/db/db.go
package db

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"

	"github.com/unclebandit/outreach-backend/internal/config"
)

// Open connects to Postgres and verifies the connection. Callers own the
// handle; there is no package-level singleton.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	database, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, err
	}

	database.SetMaxOpenConns(cfg.MaxConns)

	if err = database.Ping(); err != nil {
		database.Close()
		return nil, err
	}

	log.Println("✅ Connected to database", cfg.Name)
	return database, nil
}
