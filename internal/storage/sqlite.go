package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	upsert   string
	schema   []string
}

var dialects = map[string]dialect{
	"sqlite": {
		name: "sqlite",
		upsert: `INSERT INTO activity_states (id, user_id, patient_id, state_json, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, patient_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS activity_states (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				patient_id TEXT NOT NULL,
				state_json TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, patient_id)
			)`,
		},
	},
	"postgres": {
		name:     "postgres",
		numbered: true,
		upsert: `INSERT INTO activity_states (id, user_id, patient_id, state_json, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, patient_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS activity_states (
				id VARCHAR(36) PRIMARY KEY,
				user_id VARCHAR(191) NOT NULL,
				patient_id VARCHAR(191) NOT NULL,
				state_json TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, patient_id)
			)`,
		},
	},
	"mysql": {
		name: "mysql",
		upsert: `INSERT INTO activity_states (id, user_id, patient_id, state_json, updated_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS activity_states (
				id VARCHAR(36) PRIMARY KEY,
				user_id VARCHAR(191) NOT NULL,
				patient_id VARCHAR(191) NOT NULL,
				state_json LONGTEXT NOT NULL,
				updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				UNIQUE KEY user_patient (user_id, patient_id)
			)`,
		},
	},
}

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB wraps the SQL connection holding activity state.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open connects to driver ("sqlite", "postgres" or "mysql") and runs the
// migrations. For sqlite, dsn is a file path whose directory is created.
func Open(driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	if driver == "mysql" && !strings.Contains(dsn, "parseTime") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite only supports one writer: limit to single connection to prevent SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: d}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver returns the dialect name.
func (db *DB) Driver() string {
	return db.dialect.name
}

func (db *DB) migrate() error {
	for _, m := range db.dialect.schema {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", migrationName(m), err)
		}
	}
	return nil
}

// migrationName shortens a migration statement for error messages.
func migrationName(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	return stmt[:min(len(stmt), 40)]
}
