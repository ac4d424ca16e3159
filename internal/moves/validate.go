package moves

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/tgsim/internal/config"
)

// Catalog is the store view validation reads. *persistence.Tx satisfies it.
type Catalog interface {
	Treasuries(ctx context.Context) (map[string]int64, error)
	ProvinceOwnedBy(ctx context.Context, provinceID int64, country string) (bool, error)
	BuildingCost(ctx context.Context, buildingTypeID int64) (cost int64, ok bool, err error)
	UnitCost(ctx context.Context, unitTypeID int64) (cost int64, ok bool, err error)
}

// Validator checks legality and affordability of a batch.
type Validator struct {
	logging bool
}

// NewValidator creates a validator configured by cfg.
func NewValidator(cfg config.Config) *Validator {
	return &Validator{logging: cfg.Moves.Logging}
}

// Validate folds over moves in (turn, id) order carrying a per-country
// working balance seeded from the current treasuries. An approved move debits
// its country's balance immediately, so later moves from the same country
// only see what is left: the first submitted move wins. Every move yields
// exactly one Decision, returned in processing order. Store errors abort
// validation; bad moves never do.
func (v *Validator) Validate(ctx context.Context, cat Catalog, batch []Move) ([]Decision, error) {
	balances, err := cat.Treasuries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load treasuries: %w", err)
	}

	ordered := slices.Clone(batch)
	slices.SortStableFunc(ordered, func(a, b Move) int {
		if c := cmp.Compare(a.Turn, b.Turn); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	decisions := make([]Decision, 0, len(ordered))
	for _, m := range ordered {
		d, err := v.decide(ctx, cat, balances, m)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", m.ID, err)
		}
		if d.Approved() {
			balances[m.Country] -= d.Cost
		}
		v.log(d, balances[m.Country])
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// decide judges one move against the current working balances.
func (v *Validator) decide(ctx context.Context, cat Catalog, balances map[string]int64, m Move) (Decision, error) {
	d := Decision{Move: m}
	reject := func(o Outcome, format string, args ...any) (Decision, error) {
		d.Outcome = o
		d.Reason = fmt.Sprintf(format, args...)
		return d, nil
	}

	if m.Amount <= 0 {
		return reject(RejectedInvalidAmount, "invalid amount %d", m.Amount)
	}

	unitCost, reason, outcome, err := v.price(ctx, cat, m)
	if err != nil {
		return d, err
	}
	if outcome != Approved {
		return reject(outcome, "%s", reason)
	}

	balance, ok := balances[m.Country]
	if !ok {
		return reject(RejectedUnknownReference, "unknown country %s", m.Country)
	}

	cost, ok := totalCost(unitCost, m.Amount)
	if !ok {
		return reject(RejectedInsufficientFunds, "%s cannot afford %d x %s at %d each", m.Country, m.Amount, m.Type, unitCost)
	}
	if balance < cost {
		return reject(RejectedInsufficientFunds, "%s cannot afford %s (needs %d, has %d)", m.Country, m.Type, cost, balance)
	}

	d.Outcome = Approved
	d.Cost = cost
	return d, nil
}

// price checks the move's references and returns the per-item cost.
func (v *Validator) price(ctx context.Context, cat Catalog, m Move) (int64, string, Outcome, error) {
	switch m.Type {
	case Build:
		if m.ProvinceID == nil {
			return 0, "build without a province", RejectedUnknownReference, nil
		}
		owned, err := cat.ProvinceOwnedBy(ctx, *m.ProvinceID, m.Country)
		if err != nil {
			return 0, "", Approved, err
		}
		if !owned {
			return 0, fmt.Sprintf("%s does not own province %d", m.Country, *m.ProvinceID), RejectedUnauthorized, nil
		}
		if m.BuildingTypeID == nil {
			return 0, "build without a building type", RejectedUnknownReference, nil
		}
		cost, ok, err := cat.BuildingCost(ctx, *m.BuildingTypeID)
		if err != nil {
			return 0, "", Approved, err
		}
		if !ok {
			return 0, fmt.Sprintf("invalid building id %d", *m.BuildingTypeID), RejectedUnknownReference, nil
		}
		return cost, "", Approved, nil

	case Recruit:
		if m.UnitTypeID == nil {
			return 0, "recruit without a unit type", RejectedUnknownReference, nil
		}
		cost, ok, err := cat.UnitCost(ctx, *m.UnitTypeID)
		if err != nil {
			return 0, "", Approved, err
		}
		if !ok {
			return 0, fmt.Sprintf("invalid unit id %d", *m.UnitTypeID), RejectedUnknownReference, nil
		}
		return cost, "", Approved, nil

	default:
		return 0, fmt.Sprintf("unknown move type %q", string(m.Type)), RejectedUnknownReference, nil
	}
}

// totalCost multiplies a per-item cost by amount. It fails when the product
// does not fit in an int64.
func totalCost(unitCost, amount int64) (int64, bool) {
	if unitCost < 0 || amount < 0 {
		return 0, false
	}
	if unitCost != 0 && amount > math.MaxInt64/unitCost {
		return 0, false
	}
	return unitCost * amount, true
}

// Price attaches costs to moves without checking ownership or affordability.
// It is used when batch validation is switched off; an unknown reference is
// an error there because there is nothing to reject into.
func (v *Validator) Price(ctx context.Context, cat Catalog, batch []Move) ([]Decision, error) {
	out := make([]Decision, 0, len(batch))
	for _, m := range batch {
		var (
			cost int64
			ok   bool
			err  error
		)
		switch m.Type {
		case Build:
			if m.BuildingTypeID != nil {
				cost, ok, err = cat.BuildingCost(ctx, *m.BuildingTypeID)
			}
		case Recruit:
			if m.UnitTypeID != nil {
				cost, ok, err = cat.UnitCost(ctx, *m.UnitTypeID)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", m.ID, err)
		}
		if !ok {
			return nil, fmt.Errorf("move %d: cannot price %s", m.ID, m)
		}
		total, ok := totalCost(cost, m.Amount)
		if !ok {
			return nil, fmt.Errorf("move %d: cost of %d x %d overflows", m.ID, m.Amount, cost)
		}
		out = append(out, Decision{Move: m, Outcome: Approved, Cost: total})
	}
	return out, nil
}

func (v *Validator) log(d Decision, balance int64) {
	if !v.logging {
		return
	}
	if d.Approved() {
		slog.Info("move approved", "move", d.Move.ID, "country", d.Move.Country, "type", d.Move.Type, "cost", d.Cost, "balance", balance)
		return
	}
	slog.Info("move rejected", "move", d.Move.ID, "country", d.Move.Country, "outcome", d.Outcome, "reason", d.Reason)
}
