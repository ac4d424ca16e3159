// Package dbtest provides a migrated throwaway SQLite store and fixture
// helpers for tests that exercise turn resolution against a real database.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/tgsim/internal/persistence"
)

// Open creates a migrated database under t.TempDir and closes it on cleanup.
func Open(t *testing.T) *persistence.DB {
	t.Helper()

	db, err := persistence.Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// Do runs fn in a committed transaction and fails the test on error.
func Do(t *testing.T, db *persistence.DB, fn func(ctx context.Context, tx *persistence.Tx)) {
	t.Helper()

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *persistence.Tx) error {
		fn(ctx, tx)
		return nil
	})
	require.NoError(t, err)
}

// Country adds a country with an economy row.
func Country(t *testing.T, db *persistence.DB, code string, treasury int64, taxRate float64) {
	t.Helper()
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		require.NoError(t, tx.UpsertCountry(ctx, persistence.Country{Code: code, Name: "Country " + code}))
		require.NoError(t, tx.SetEconomy(ctx, code, treasury, taxRate))
	})
}

// Province adds a province and returns its id. An empty owner leaves it
// unowned; a zero resourceID leaves it without a resource.
func Province(t *testing.T, db *persistence.DB, name, owner string, population, resourceID int64) int64 {
	t.Helper()

	p := persistence.Province{Name: name, Population: population}
	if owner != "" {
		p.Owner = &owner
	}
	if resourceID != 0 {
		p.ResourceID = &resourceID
	}

	var id int64
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		var err error
		id, err = tx.UpsertProvince(ctx, p)
		require.NoError(t, err)
	})
	return id
}

// BuildingType adds a building type and returns its id.
func BuildingType(t *testing.T, db *persistence.DB, b persistence.BuildingType) int64 {
	t.Helper()

	var id int64
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		var err error
		id, err = tx.InsertBuildingType(ctx, b)
		require.NoError(t, err)
	})
	return id
}

// UnitType adds a unit type and returns its id.
func UnitType(t *testing.T, db *persistence.DB, u persistence.UnitType) int64 {
	t.Helper()

	var id int64
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		var err error
		id, err = tx.InsertUnitType(ctx, u)
		require.NoError(t, err)
	})
	return id
}

// Resource adds a resource and returns its id.
func Resource(t *testing.T, db *persistence.DB, name string) int64 {
	t.Helper()

	var id int64
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		var err error
		id, err = tx.InsertResource(ctx, name)
		require.NoError(t, err)
	})
	return id
}

// Move inserts a pending move and returns its id.
func Move(t *testing.T, db *persistence.DB, m persistence.MoveRow) int64 {
	t.Helper()

	var id int64
	Do(t, db, func(ctx context.Context, tx *persistence.Tx) {
		var err error
		id, err = tx.InsertMove(ctx, m)
		require.NoError(t, err)
	})
	return id
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
