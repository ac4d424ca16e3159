package moves

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tgsim/internal/persistence"
	"github.com/talgya/tgsim/internal/persistence/dbtest"
)

type world struct {
	db       *persistence.DB
	palermo  int64
	lyon     int64
	farm     int64 // costs 60
	infantry int64 // costs 15
}

func newWorld(t *testing.T) world {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.Country(t, db, "ITA", 100, 0.1)
	dbtest.Country(t, db, "FRA", 1000, 0.1)
	return world{
		db:       db,
		palermo:  dbtest.Province(t, db, "Palermo", "ITA", 1000, 0),
		lyon:     dbtest.Province(t, db, "Lyon", "FRA", 1000, 0),
		farm:     dbtest.BuildingType(t, db, persistence.BuildingType{Name: "farm", BaseCost: 60}),
		infantry: dbtest.UnitType(t, db, persistence.UnitType{Name: "infantry", RecruitmentCost: 15}),
	}
}

func (w world) build(t *testing.T, country string, province, amount int64) int64 {
	return dbtest.Move(t, w.db, persistence.MoveRow{
		Turn: 1, CountryCode: country, MoveType: "build",
		TargetProvinceID: dbtest.Ptr(province), TargetBuildingTypeID: dbtest.Ptr(w.farm), Amount: amount,
	})
}

func (w world) recruit(t *testing.T, country string, amount int64) int64 {
	return dbtest.Move(t, w.db, persistence.MoveRow{
		Turn: 1, CountryCode: country, MoveType: "recruit",
		TargetUnitTypeID: dbtest.Ptr(w.infantry), Amount: amount,
	})
}

type snapshot struct {
	ita, fra  int64
	farms     int64
	itaUnits  int64
	processed map[int64]bool
}

func (w world) snapshot(t *testing.T, ids ...int64) snapshot {
	t.Helper()
	s := snapshot{processed: make(map[int64]bool)}
	dbtest.Do(t, w.db, func(ctx context.Context, tx *persistence.Tx) {
		e, err := tx.Economy(ctx, "ITA")
		require.NoError(t, err)
		s.ita = e.Treasury
		e, err = tx.Economy(ctx, "FRA")
		require.NoError(t, err)
		s.fra = e.Treasury
		s.farms, err = tx.BuildingAmount(ctx, w.palermo, w.farm)
		require.NoError(t, err)
		s.itaUnits, err = tx.UnitAmount(ctx, "ITA", w.infantry)
		require.NoError(t, err)
		for _, id := range ids {
			s.processed[id], err = tx.MoveProcessed(ctx, id)
			require.NoError(t, err)
		}
	})
	return s
}

func TestProcess_AffordabilityOrdering(t *testing.T) {
	w := newWorld(t)
	first := w.build(t, "ITA", w.palermo, 1)
	second := w.build(t, "ITA", w.palermo, 1)

	res, err := NewProcessor(quietConfig()).Process(context.Background(), w.db)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Approved())
	assert.Equal(t, 1, res.Rejected())
	assert.Equal(t, 1, res.Executed)
	assert.NotEmpty(t, res.BatchID)

	s := w.snapshot(t, first, second)
	assert.Equal(t, int64(40), s.ita)
	assert.Equal(t, int64(1), s.farms)
	assert.True(t, s.processed[first])
	assert.False(t, s.processed[second], "rejected moves stay pending")
}

func TestProcess_AppliesBuildAndRecruit(t *testing.T) {
	w := newWorld(t)
	b := w.build(t, "ITA", w.palermo, 1)
	r := w.recruit(t, "ITA", 2)
	w.build(t, "ITA", w.lyon, 1) // not ITA's province

	res, err := NewProcessor(quietConfig()).Process(context.Background(), w.db)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Executed)
	require.Len(t, res.Decisions, 3)
	assert.Equal(t, RejectedUnauthorized, res.Decisions[2].Outcome)

	s := w.snapshot(t, b, r)
	assert.Equal(t, int64(100-60-30), s.ita)
	assert.Equal(t, int64(1000), s.fra)
	assert.Equal(t, int64(1), s.farms)
	assert.Equal(t, int64(2), s.itaUnits)
	assert.True(t, s.processed[b])
	assert.True(t, s.processed[r])
}

func TestProcess_HugeAmountLeavesTreasuryIntact(t *testing.T) {
	w := newWorld(t)
	m := w.build(t, "ITA", w.palermo, 153722867280912931)

	res, err := NewProcessor(quietConfig()).Process(context.Background(), w.db)
	require.NoError(t, err)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, RejectedInsufficientFunds, res.Decisions[0].Outcome)
	assert.Zero(t, res.Executed)

	s := w.snapshot(t, m)
	assert.Equal(t, int64(100), s.ita)
	assert.Zero(t, s.farms)
	assert.False(t, s.processed[m])
}

type countingStore struct {
	db  *persistence.DB
	txs int
}

func (c *countingStore) WithTx(ctx context.Context, fn func(tx *persistence.Tx) error) error {
	c.txs++
	return c.db.WithTx(ctx, fn)
}

func TestProcess_ValidatesAndExecutesInOneTransaction(t *testing.T) {
	w := newWorld(t)
	b := w.build(t, "ITA", w.palermo, 1)
	w.recruit(t, "ITA", 3) // 45 > 40 left after the farm

	store := &countingStore{db: w.db}
	res, err := NewProcessor(quietConfig()).Process(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, store.txs)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, RejectedInsufficientFunds, res.Decisions[1].Outcome)

	s := w.snapshot(t, b)
	assert.Equal(t, int64(40), s.ita)
	assert.True(t, s.processed[b])
}

func TestProcess_SecondRunIsNoOp(t *testing.T) {
	w := newWorld(t)
	w.recruit(t, "ITA", 2)

	p := NewProcessor(quietConfig())
	_, err := p.Process(context.Background(), w.db)
	require.NoError(t, err)

	res, err := p.Process(context.Background(), w.db)
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)

	s := w.snapshot(t)
	assert.Equal(t, int64(70), s.ita)
	assert.Equal(t, int64(2), s.itaUnits)
}

func TestExecute_SkipsAlreadyProcessedMove(t *testing.T) {
	w := newWorld(t)
	r := w.recruit(t, "ITA", 2)

	approved := []Decision{{
		Move:    Move{ID: r, Turn: 1, Country: "ITA", Type: Recruit, UnitTypeID: &w.infantry, Amount: 2},
		Outcome: Approved,
		Cost:    30,
	}}
	x := NewExecutor(quietConfig())

	n, err := x.Execute(context.Background(), w.db, approved)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = x.Execute(context.Background(), w.db, approved)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s := w.snapshot(t, r)
	assert.Equal(t, int64(70), s.ita)
	assert.Equal(t, int64(2), s.itaUnits)
	assert.True(t, s.processed[r])
}

func TestExecute_FailureRollsBackWholeBatch(t *testing.T) {
	w := newWorld(t)
	b := w.build(t, "ITA", w.palermo, 1)
	r := w.recruit(t, "ITA", 1)
	ghost := w.recruit(t, "ZZZ", 1)

	approved := []Decision{
		{Move: Move{ID: b, Country: "ITA", Type: Build, ProvinceID: &w.palermo, BuildingTypeID: &w.farm, Amount: 1}, Outcome: Approved, Cost: 60},
		{Move: Move{ID: r, Country: "ITA", Type: Recruit, UnitTypeID: &w.infantry, Amount: 1}, Outcome: Approved, Cost: 15},
		// No economy row: the debit fails mid-batch.
		{Move: Move{ID: ghost, Country: "ZZZ", Type: Recruit, UnitTypeID: &w.infantry, Amount: 1}, Outcome: Approved, Cost: 15},
	}

	_, err := NewExecutor(quietConfig()).Execute(context.Background(), w.db, approved)
	require.ErrorIs(t, err, persistence.ErrNoEconomy)

	s := w.snapshot(t, b, r, ghost)
	assert.Equal(t, int64(100), s.ita)
	assert.Zero(t, s.farms)
	assert.Zero(t, s.itaUnits)
	assert.False(t, s.processed[b])
	assert.False(t, s.processed[r])
	assert.False(t, s.processed[ghost])
}

func TestProcess_WithoutBatchValidation(t *testing.T) {
	w := newWorld(t)
	w.build(t, "ITA", w.palermo, 1)
	w.build(t, "ITA", w.palermo, 1)

	cfg := quietConfig()
	cfg.Moves.BatchValidation = false
	res, err := NewProcessor(cfg).Process(context.Background(), w.db)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Executed)

	// Nothing guards the treasury when validation is off.
	s := w.snapshot(t)
	assert.Equal(t, int64(-20), s.ita)
	assert.Equal(t, int64(2), s.farms)
}
