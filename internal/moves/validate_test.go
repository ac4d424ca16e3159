package moves

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tgsim/internal/config"
)

type fakeCatalog struct {
	treasuries map[string]int64
	owners     map[int64]string
	buildings  map[int64]int64
	units      map[int64]int64
	err        error
}

func (f *fakeCatalog) Treasuries(context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(f.treasuries))
	for k, v := range f.treasuries {
		out[k] = v
	}
	return out, f.err
}

func (f *fakeCatalog) ProvinceOwnedBy(_ context.Context, id int64, country string) (bool, error) {
	return f.owners[id] == country, f.err
}

func (f *fakeCatalog) BuildingCost(_ context.Context, id int64) (int64, bool, error) {
	c, ok := f.buildings[id]
	return c, ok, f.err
}

func (f *fakeCatalog) UnitCost(_ context.Context, id int64) (int64, bool, error) {
	c, ok := f.units[id]
	return c, ok, f.err
}

func id(v int64) *int64 { return &v }

func quietConfig() config.Config {
	cfg := config.Default()
	cfg.Moves.Logging = false
	return cfg
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		treasuries: map[string]int64{"ITA": 100, "FRA": 1000},
		owners:     map[int64]string{1: "ITA", 2: "FRA"},
		buildings:  map[int64]int64{10: 60, 11: 5},
		units:      map[int64]int64{20: 15},
	}
}

func TestValidate_FirstSubmittedMoveWins(t *testing.T) {
	batch := []Move{
		{ID: 2, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(10), Amount: 1},
		{ID: 1, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(10), Amount: 1},
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	require.Len(t, ds, 2)

	assert.Equal(t, int64(1), ds[0].Move.ID)
	assert.Equal(t, Approved, ds[0].Outcome)
	assert.Equal(t, int64(60), ds[0].Cost)

	assert.Equal(t, int64(2), ds[1].Move.ID)
	assert.Equal(t, RejectedInsufficientFunds, ds[1].Outcome)
	assert.Zero(t, ds[1].Cost)
}

func TestValidate_TurnOrdersBeforeID(t *testing.T) {
	batch := []Move{
		{ID: 1, Turn: 2, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 5},
		{ID: 9, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 5},
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(9), ds[0].Move.ID)
	assert.Equal(t, Approved, ds[0].Outcome) // 75 of 100
	assert.Equal(t, RejectedInsufficientFunds, ds[1].Outcome)
}

func TestValidate_CheaperLaterMoveStillFits(t *testing.T) {
	batch := []Move{
		{ID: 1, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(10), Amount: 1}, // 60
		{ID: 2, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(10), Amount: 1}, // 60, rejected
		{ID: 3, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(11), Amount: 8}, // 40
		{ID: 4, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(11), Amount: 1}, // 5, rejected
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)

	got := make([]Outcome, len(ds))
	for i, d := range ds {
		got[i] = d.Outcome
	}
	assert.Equal(t, []Outcome{Approved, RejectedInsufficientFunds, Approved, RejectedInsufficientFunds}, got)
}

func TestValidate_BalancesArePerCountry(t *testing.T) {
	batch := []Move{
		{ID: 1, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 6}, // 90
		{ID: 2, Turn: 1, Country: "FRA", Type: Recruit, UnitTypeID: id(20), Amount: 6}, // 90
		{ID: 3, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 1}, // 15 > 10 left
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	assert.Equal(t, Approved, ds[0].Outcome)
	assert.Equal(t, Approved, ds[1].Outcome)
	assert.Equal(t, RejectedInsufficientFunds, ds[2].Outcome)
}

func TestValidate_EveryMoveGetsExactlyOneOutcome(t *testing.T) {
	batch := []Move{
		{ID: 1, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 0},
		{ID: 2, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: -3},
		{ID: 3, Turn: 1, Country: "ITA", Type: "demolish", Amount: 1},
		{ID: 4, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(2), BuildingTypeID: id(10), Amount: 1},
		{ID: 5, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(99), BuildingTypeID: id(10), Amount: 1},
		{ID: 6, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(99), Amount: 1},
		{ID: 7, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(99), Amount: 1},
		{ID: 8, Turn: 1, Country: "ITA", Type: Recruit, Amount: 1},
		{ID: 9, Turn: 1, Country: "XXX", Type: Recruit, UnitTypeID: id(20), Amount: 1},
		{ID: 10, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 7},
		{ID: 11, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 6},
	}
	want := []Outcome{
		RejectedInvalidAmount,
		RejectedInvalidAmount,
		RejectedUnknownReference,
		RejectedUnauthorized,
		RejectedUnauthorized,
		RejectedUnknownReference,
		RejectedUnknownReference,
		RejectedUnknownReference,
		RejectedUnknownReference,
		RejectedInsufficientFunds,
		Approved,
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	require.Len(t, ds, len(batch))
	for i, d := range ds {
		assert.Equal(t, want[i], d.Outcome, "move %d: %s", d.Move.ID, d.Reason)
		if d.Approved() {
			assert.Empty(t, d.Reason)
		} else {
			assert.NotEmpty(t, d.Reason)
		}
	}
}

func TestValidate_StoreErrorAborts(t *testing.T) {
	cat := newCatalog()
	boom := errors.New("locked")
	cat.err = boom

	_, err := NewValidator(quietConfig()).Validate(context.Background(), cat, []Move{{ID: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 1}})
	assert.ErrorIs(t, err, boom)
}

func TestPrice_SkipsChecks(t *testing.T) {
	batch := []Move{
		{ID: 1, Country: "ITA", Type: Build, ProvinceID: id(2), BuildingTypeID: id(10), Amount: 3},
	}
	ds, err := NewValidator(quietConfig()).Price(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, int64(180), ds[0].Cost)
	assert.True(t, ds[0].Approved())

	_, err = NewValidator(quietConfig()).Price(context.Background(), newCatalog(), []Move{{ID: 2, Type: "trade", Amount: 1}})
	assert.Error(t, err)
}

func TestValidate_CostOverflowIsRejected(t *testing.T) {
	huge := int64(math.MaxInt64/60 + 1)
	batch := []Move{
		{ID: 1, Turn: 1, Country: "ITA", Type: Build, ProvinceID: id(1), BuildingTypeID: id(10), Amount: huge},
		{ID: 2, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: id(20), Amount: 1},
	}

	ds, err := NewValidator(quietConfig()).Validate(context.Background(), newCatalog(), batch)
	require.NoError(t, err)
	assert.Equal(t, RejectedInsufficientFunds, ds[0].Outcome)
	assert.Zero(t, ds[0].Cost)
	assert.Equal(t, Approved, ds[1].Outcome)
	assert.Equal(t, int64(15), ds[1].Cost)

	_, err = NewValidator(quietConfig()).Price(context.Background(), newCatalog(), batch[:1])
	assert.ErrorContains(t, err, "overflows")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "approved", Approved.String())
	assert.Equal(t, "rejected-insufficient-funds", RejectedInsufficientFunds.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
