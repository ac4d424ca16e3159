// Package persistence provides SQLite-based storage for the world state that
// turn resolution reads and writes.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrSchema marks a store that does not carry the tables or columns turn
// resolution queries against.
var ErrSchema = errors.New("schema check failed")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. It does not
// create any tables; call Migrate for that.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer process, one connection: a tick or a batch owns the store.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a single transaction. The transaction commits only if
// fn returns nil; any error or panic rolls every statement back.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RequiredTables lists every table turn resolution touches.
var RequiredTables = []string{
	"countries", "provinces", "country_economy",
	"building_types", "province_buildings", "building_effects",
	"modifiers", "country_modifiers", "unit_types", "country_units",
	"resources", "country_resources", "player_moves",
}

// ValidateSchema checks that the required tables exist and that building
// effects are keyed by building type id. Violations wrap ErrSchema.
func (db *DB) ValidateSchema(ctx context.Context) error {
	var existing []string
	if err := db.conn.SelectContext(ctx, &existing,
		"SELECT name FROM sqlite_master WHERE type = 'table'"); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	var missing []string
	for _, name := range RequiredTables {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing tables %s", ErrSchema, strings.Join(missing, ", "))
	}

	var cols []string
	if err := db.conn.SelectContext(ctx, &cols,
		"SELECT name FROM pragma_table_info('building_effects')"); err != nil {
		return fmt.Errorf("inspect building_effects: %w", err)
	}
	for _, c := range cols {
		if c == "building_type_id" {
			slog.Debug("db schema validated")
			return nil
		}
	}
	return fmt.Errorf("%w: building_effects must reference building_type_id", ErrSchema)
}

// Migrate creates every table idempotently.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS countries (
	code TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	culture TEXT,
	religion TEXT,
	unrest REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS resources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS provinces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	population INTEGER NOT NULL CHECK (population >= 0),
	owner_country_code TEXT REFERENCES countries(code),
	terrain TEXT,
	culture TEXT,
	religion TEXT,
	resource_id INTEGER REFERENCES resources(id)
);

CREATE TABLE IF NOT EXISTS states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS state_provinces (
	state_id INTEGER NOT NULL REFERENCES states(id),
	province_id INTEGER NOT NULL REFERENCES provinces(id),
	PRIMARY KEY (state_id, province_id)
);

CREATE TABLE IF NOT EXISTS country_economy (
	country_code TEXT PRIMARY KEY REFERENCES countries(code),
	treasury INTEGER NOT NULL DEFAULT 0,
	tax_rate REAL NOT NULL DEFAULT 0.1,
	tax_efficiency REAL NOT NULL DEFAULT 1.0,
	corruption REAL NOT NULL DEFAULT 0,
	tax_income INTEGER NOT NULL DEFAULT 0,
	building_income INTEGER NOT NULL DEFAULT 0,
	administration_cost INTEGER NOT NULL DEFAULT 0,
	military_upkeep INTEGER NOT NULL DEFAULT 0,
	building_upkeep INTEGER NOT NULL DEFAULT 0,
	total_income INTEGER NOT NULL DEFAULT 0,
	total_expenses INTEGER NOT NULL DEFAULT 0,
	total_population INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS modifiers (
	modifier_key TEXT PRIMARY KEY,
	description TEXT,
	default_value REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS country_modifiers (
	country_code TEXT NOT NULL REFERENCES countries(code),
	modifier_key TEXT NOT NULL,
	value REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (country_code, modifier_key)
);

CREATE TABLE IF NOT EXISTS building_types (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	base_tax_income REAL NOT NULL DEFAULT 0,
	base_production REAL NOT NULL DEFAULT 0,
	base_upkeep REAL NOT NULL DEFAULT 0,
	base_cost INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS province_buildings (
	province_id INTEGER NOT NULL REFERENCES provinces(id),
	building_type_id INTEGER NOT NULL REFERENCES building_types(id),
	amount INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
	PRIMARY KEY (province_id, building_type_id)
);

CREATE TABLE IF NOT EXISTS building_effects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	building_type_id INTEGER NOT NULL REFERENCES building_types(id),
	scope TEXT NOT NULL CHECK (scope IN ('province', 'country')),
	modifier_key TEXT NOT NULL,
	value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS unit_types (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	recruitment_cost INTEGER NOT NULL DEFAULT 0,
	upkeep_cost REAL NOT NULL DEFAULT 0,
	attack INTEGER NOT NULL DEFAULT 0,
	defense INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS country_units (
	country_code TEXT NOT NULL REFERENCES countries(code),
	unit_type_id INTEGER NOT NULL REFERENCES unit_types(id),
	amount INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
	PRIMARY KEY (country_code, unit_type_id)
);

CREATE TABLE IF NOT EXISTS country_resources (
	country_code TEXT NOT NULL REFERENCES countries(code),
	resource_id INTEGER NOT NULL REFERENCES resources(id),
	stockpile REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (country_code, resource_id)
);

CREATE TABLE IF NOT EXISTS player_moves (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	turn INTEGER NOT NULL,
	country_code TEXT NOT NULL,
	move_type TEXT NOT NULL,
	target_province_id INTEGER,
	target_building_type_id INTEGER,
	target_unit_type_id INTEGER,
	amount INTEGER NOT NULL DEFAULT 1,
	notes TEXT,
	processed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_provinces_owner ON provinces(owner_country_code);
CREATE INDEX IF NOT EXISTS idx_moves_pending ON player_moves(processed, turn, id);
`
