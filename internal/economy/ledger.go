// Package economy provides the per-country income, expense and stockpile
// formulas applied by the economy tick.
package economy

import (
	"math"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/modifier"
)

// Facts are the aggregates a tick loads for one country before computing.
type Facts struct {
	Treasury           int64
	TaxRate            float64
	Population         int64
	Provinces          int64
	BaseMilitaryUpkeep float64 // Σ unit amount × upkeep
	BuildingIncomeRaw  float64 // Σ building tax income × amount
	BuildingUpkeep     float64 // Σ building upkeep × amount
	TotalUnits         int64
}

// Ledger is one country's income and expense breakdown for a tick.
type Ledger struct {
	TaxIncome          float64
	BuildingIncome     float64
	AdministrationCost float64
	MilitaryUpkeep     float64
	BuildingUpkeep     float64

	UnitLimit int64

	TotalIncome   int64 // floor(tax + building income)
	TotalExpenses int64 // floor(admin + military + building upkeep)

	OldTreasury int64
	NewTreasury int64
}

// Balance is the signed treasury change this tick.
func (l Ledger) Balance() int64 {
	return l.TotalIncome - l.TotalExpenses
}

// ComputeLedger applies the tick formulas. Treasury is unconstrained: a
// country whose expenses outrun its income goes negative.
func ComputeLedger(f Facts, m modifier.Set, cfg config.Config) Ledger {
	l := Ledger{
		TaxIncome:          float64(f.Population) * cfg.Economy.BaseTaxPerPop * f.TaxRate * m.TaxEfficiency,
		AdministrationCost: float64(f.Provinces) * cfg.Economy.AdminCostPerProvince * m.AdminCost,
		MilitaryUpkeep:     f.BaseMilitaryUpkeep * m.MilitaryUpkeep,
		BuildingIncome:     f.BuildingIncomeRaw * m.BuildingIncomeMult,
		BuildingUpkeep:     f.BuildingUpkeep,
		UnitLimit:          UnitLimit(f.Population, m.UnitLimit, cfg.Military),
		OldTreasury:        f.Treasury,
	}

	l.TotalIncome = floor(l.TaxIncome + l.BuildingIncome)
	l.TotalExpenses = floor(l.AdministrationCost + l.MilitaryUpkeep + l.BuildingUpkeep)
	l.NewTreasury = l.OldTreasury + l.TotalIncome - l.TotalExpenses
	return l
}

// UnitLimit is how many units a population supports:
// floor(population × ratio × modifier / pop_per_unit) + buffer.
func UnitLimit(population int64, mod float64, mil config.Military) int64 {
	if mil.PopPerUnit <= 0 {
		return int64(mil.UnitLimitBuffer)
	}
	supported := float64(population) * mil.BaseUnitRatio * mod / float64(mil.PopPerUnit)
	return floor(supported) + int64(mil.UnitLimitBuffer)
}

func floor(v float64) int64 {
	return int64(math.Floor(v))
}
