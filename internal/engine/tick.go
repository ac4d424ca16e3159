// Package engine runs the economy tick: it loads every country's facts,
// resolves modifiers, applies the economy formulas, accrues and caps
// resources and writes the new economic snapshot, all in one transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/economy"
	"github.com/talgya/tgsim/internal/modifier"
	"github.com/talgya/tgsim/internal/persistence"
)

// Store opens the transaction a tick runs in. *persistence.DB satisfies it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *persistence.Tx) error) error
}

// TickEngine resolves one economy tick.
type TickEngine struct {
	cfg config.Config
}

// NewTickEngine creates a tick engine bound to cfg.
func NewTickEngine(cfg config.Config) *TickEngine {
	return &TickEngine{cfg: cfg}
}

// TickReport summarizes a whole tick.
type TickReport struct {
	RunID     string
	Countries []CountryReport
	Skipped   []string // countries without an economy row
}

// CountryReport is the per-country result of a tick.
type CountryReport struct {
	Country     string
	Facts       economy.Facts
	Modifiers   modifier.Set
	Ledger      economy.Ledger
	ResourceCap float64
	CapExcess   float64
	Production  []economy.Production
	Stockpile   []persistence.Stockpile
}

// TotalStockpile is the post-cap sum of the country's stockpile.
func (r CountryReport) TotalStockpile() float64 {
	return economy.TotalStockpile(r.Stockpile)
}

// Run executes one tick over every country. Running it twice applies income,
// expenses and production twice. Any store error aborts and rolls back the
// whole tick; a country without an economy row is skipped with a warning.
func (e *TickEngine) Run(ctx context.Context, store Store) (TickReport, error) {
	report := TickReport{RunID: uuid.NewString()}
	log := slog.With("run", report.RunID)
	log.Info("economy tick start")

	err := store.WithTx(ctx, func(tx *persistence.Tx) error {
		report.Countries = nil
		report.Skipped = nil

		names, err := tx.ResourceNames(ctx)
		if err != nil {
			return fmt.Errorf("resource names: %w", err)
		}
		codes, err := tx.CountryCodes(ctx)
		if err != nil {
			return fmt.Errorf("countries: %w", err)
		}

		resolver := modifier.NewResolver(tx)
		for _, code := range codes {
			cr, err := e.tickCountry(ctx, tx, resolver, code, names)
			if errors.Is(err, persistence.ErrNoEconomy) {
				log.Warn("no economy row, skipping country", "country", code)
				report.Skipped = append(report.Skipped, code)
				continue
			}
			if err != nil {
				return fmt.Errorf("tick %s: %w", code, err)
			}
			log.Debug("country ticked",
				"country", code,
				"treasury", cr.Ledger.NewTreasury,
				"income", cr.Ledger.TotalIncome,
				"expenses", cr.Ledger.TotalExpenses,
			)
			report.Countries = append(report.Countries, cr)
		}
		return nil
	})
	if err != nil {
		log.Error("economy tick failed, rolled back", "error", err)
		return report, err
	}

	log.Info("economy tick complete", "countries", len(report.Countries), "skipped", len(report.Skipped))
	return report, nil
}

func (e *TickEngine) tickCountry(ctx context.Context, tx *persistence.Tx, resolver *modifier.Resolver, code string, names map[int64]string) (CountryReport, error) {
	cr := CountryReport{Country: code}

	facts, err := loadFacts(ctx, tx, code)
	if err != nil {
		return cr, err
	}
	cr.Facts = facts

	if cr.Modifiers, err = resolver.ResolveSet(ctx, code); err != nil {
		return cr, err
	}
	cr.Ledger = economy.ComputeLedger(facts, cr.Modifiers, e.cfg)

	// Accrue this turn's production.
	counts, err := tx.ResourceProvinceCounts(ctx, code)
	if err != nil {
		return cr, fmt.Errorf("resource production: %w", err)
	}
	cr.Production = economy.ResourceProduction(counts, e.cfg.Resources.ProductionPerProvince, names)
	for _, p := range cr.Production {
		if err := tx.AddStockpile(ctx, code, p.ResourceID, p.Amount); err != nil {
			return cr, err
		}
	}

	// Enforce the shared cap: snapshot every row, then write the scaled values.
	cr.ResourceCap = economy.StockpileCap(facts.Provinces, e.cfg.Resources.CapPerProvince)
	rows, err := tx.Stockpiles(ctx, code)
	if err != nil {
		return cr, fmt.Errorf("stockpiles: %w", err)
	}
	scaled, excess := economy.ScaleToCap(rows, cr.ResourceCap)
	if excess > 0 {
		for _, r := range scaled {
			if err := tx.SetStockpile(ctx, code, r.ResourceID, r.Amount); err != nil {
				return cr, err
			}
		}
		slog.Debug("stockpile capped", "country", code, "cap", cr.ResourceCap, "excess", excess)
	}
	cr.CapExcess = excess
	cr.Stockpile = scaled

	l := cr.Ledger
	err = tx.SaveEconomy(ctx, code, persistence.EconomySnapshot{
		Treasury:           l.NewTreasury,
		TaxIncome:          int64(l.TaxIncome),
		BuildingIncome:     int64(l.BuildingIncome),
		TotalIncome:        l.TotalIncome,
		AdministrationCost: int64(l.AdministrationCost),
		MilitaryUpkeep:     int64(l.MilitaryUpkeep),
		BuildingUpkeep:     int64(l.BuildingUpkeep),
		TotalExpenses:      l.TotalExpenses,
		TotalPopulation:    facts.Population,
	})
	return cr, err
}

// loadFacts pulls every aggregate the formulas need for one country.
func loadFacts(ctx context.Context, tx *persistence.Tx, code string) (economy.Facts, error) {
	var f economy.Facts

	econ, err := tx.Economy(ctx, code)
	if err != nil {
		return f, err
	}
	f.Treasury = econ.Treasury
	f.TaxRate = econ.TaxRate

	if f.Population, err = tx.Population(ctx, code); err != nil {
		return f, fmt.Errorf("population: %w", err)
	}
	if f.Provinces, err = tx.ProvinceCount(ctx, code); err != nil {
		return f, fmt.Errorf("provinces: %w", err)
	}
	if f.BaseMilitaryUpkeep, err = tx.MilitaryUpkeep(ctx, code); err != nil {
		return f, fmt.Errorf("military upkeep: %w", err)
	}
	if f.TotalUnits, err = tx.TotalUnits(ctx, code); err != nil {
		return f, fmt.Errorf("units: %w", err)
	}
	if f.BuildingIncomeRaw, f.BuildingUpkeep, err = tx.BuildingEconomy(ctx, code); err != nil {
		return f, fmt.Errorf("buildings: %w", err)
	}
	return f, nil
}
