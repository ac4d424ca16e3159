// Package modifier resolves the effective multiplier a country applies to an
// economic computation. A multiplier combines the master default for a key,
// the country's own fractional override and the country-scope effects of the
// buildings standing in its provinces.
package modifier

import (
	"context"
	"fmt"
)

// Keys the economy tick resolves every turn.
const (
	TaxEfficiency      = "tax_efficiency"
	AdminCost          = "admin_cost_modifier"
	UnitLimit          = "unit_limit_modifier"
	MilitaryUpkeep     = "military_upkeep_modifier"
	BuildingIncomeMult = "building_income_mult"
)

// Source is the store view the resolver needs. *persistence.Tx satisfies it.
type Source interface {
	// ModifierDefault returns the master default; ok is false when no master
	// row exists.
	ModifierDefault(ctx context.Context, key string) (value float64, ok bool, err error)
	// CountryOverride returns the fractional override, 0 when absent.
	CountryOverride(ctx context.Context, country, key string) (float64, error)
	// BuildingContribution returns Σ effect.value × amount over country-scope
	// effects for key in the country's provinces.
	BuildingContribution(ctx context.Context, country, key string) (float64, error)
}

// Resolver computes effective modifiers from a Source. It holds no cache:
// building sets change between moves, so every call reads fresh.
type Resolver struct {
	src Source
}

// NewResolver creates a resolver reading from src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Direct returns default(key) × (1 + override(country, key)). A missing
// master row counts as a default of 1.
func (r *Resolver) Direct(ctx context.Context, country, key string) (float64, error) {
	base, ok, err := r.src.ModifierDefault(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("default %s: %w", key, err)
	}
	if !ok {
		base = 1.0
	}
	override, err := r.src.CountryOverride(ctx, country, key)
	if err != nil {
		return 0, fmt.Errorf("override %s/%s: %w", country, key, err)
	}
	return base * (1 + override), nil
}

// BuildingFactor returns 1 + the summed building contribution for key.
func (r *Resolver) BuildingFactor(ctx context.Context, country, key string) (float64, error) {
	sum, err := r.src.BuildingContribution(ctx, country, key)
	if err != nil {
		return 0, fmt.Errorf("buildings %s/%s: %w", country, key, err)
	}
	return 1 + sum, nil
}

// Resolve returns the effective modifier: direct factor × building factor.
func (r *Resolver) Resolve(ctx context.Context, country, key string) (float64, error) {
	direct, err := r.Direct(ctx, country, key)
	if err != nil {
		return 0, err
	}
	building, err := r.BuildingFactor(ctx, country, key)
	if err != nil {
		return 0, err
	}
	return direct * building, nil
}

// Set is one country's resolved modifiers for a tick.
type Set struct {
	TaxEfficiency      float64
	AdminCost          float64
	UnitLimit          float64
	MilitaryUpkeep     float64
	BuildingIncomeMult float64
}

// Neutral is the set with every factor at 1.
func Neutral() Set {
	return Set{1, 1, 1, 1, 1}
}

// ResolveSet resolves every axis the economy tick needs. The building income
// multiplier is driven by buildings alone; it has no master default or
// country override.
func (r *Resolver) ResolveSet(ctx context.Context, country string) (Set, error) {
	var s Set
	var err error

	axes := []struct {
		key string
		dst *float64
	}{
		{TaxEfficiency, &s.TaxEfficiency},
		{AdminCost, &s.AdminCost},
		{UnitLimit, &s.UnitLimit},
		{MilitaryUpkeep, &s.MilitaryUpkeep},
	}
	for _, ax := range axes {
		if *ax.dst, err = r.Resolve(ctx, country, ax.key); err != nil {
			return s, err
		}
	}

	if s.BuildingIncomeMult, err = r.BuildingFactor(ctx, country, BuildingIncomeMult); err != nil {
		return s, err
	}
	return s, nil
}
