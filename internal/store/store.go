// Package store persists the vendor service catalog, entitlements and the
// site/phonebook read model in a single SQLite database.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Store provides CRUD operations for the platform's durable records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the phonebook database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "phonebook.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open phonebook db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vendor_services (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL UNIQUE,
		friendly_name    TEXT NOT NULL DEFAULT '',
		version          TEXT NOT NULL DEFAULT '',
		supported_fields TEXT NOT NULL DEFAULT '[]',
		created_at       INTEGER NOT NULL,
		provisioned_at   INTEGER
	);

	CREATE TABLE IF NOT EXISTS sites (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS phonebook_fields (
		id                TEXT PRIMARY KEY,
		site_id           TEXT NOT NULL REFERENCES sites(id),
		name              TEXT NOT NULL,
		type              TEXT NOT NULL DEFAULT 'text',
		required          INTEGER NOT NULL DEFAULT 0,
		created_by_system INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fields_site ON phonebook_fields(site_id);

	CREATE TABLE IF NOT EXISTS phonebooks (
		id         TEXT PRIMARY KEY,
		site_id    TEXT NOT NULL REFERENCES sites(id),
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_phonebooks_site ON phonebooks(site_id);

	CREATE TABLE IF NOT EXISTS phonebook_entries (
		id           TEXT PRIMARY KEY,
		phonebook_id TEXT NOT NULL REFERENCES phonebooks(id),
		field_values TEXT NOT NULL DEFAULT '{}',
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_phonebook ON phonebook_entries(phonebook_id);

	CREATE TABLE IF NOT EXISTS entitlements (
		id                  TEXT PRIMARY KEY,
		site_id             TEXT NOT NULL REFERENCES sites(id),
		vendor_service_name TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'setup',
		field_mapping       TEXT NOT NULL DEFAULT '{}',
		configuration       TEXT NOT NULL DEFAULT '{}',
		access_key          TEXT NOT NULL UNIQUE,
		metadata            TEXT NOT NULL DEFAULT '{}',
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL,
		UNIQUE(site_id, vendor_service_name)
	);
	CREATE INDEX IF NOT EXISTS idx_entitlements_service ON entitlements(vendor_service_name);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init phonebook schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func newID() string {
	return ulid.Make().String()
}

// newAccessKey returns a 64 character hex bearer credential.
func newAccessKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, out any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
