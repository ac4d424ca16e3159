package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Reference-data writes used by the world importer and by fixtures.

// UpsertCountry inserts a country or updates its name and tags.
func (t *Tx) UpsertCountry(ctx context.Context, c Country) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO countries (code, name, culture, religion, unrest)
		VALUES (:code, :name, :culture, :religion, :unrest)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			culture = excluded.culture,
			religion = excluded.religion,
			unrest = excluded.unrest`, c)
	if err != nil {
		return fmt.Errorf("upsert country %s: %w", c.Code, err)
	}
	return nil
}

// UpsertProvince inserts a province by name or updates its population, owner
// and tags. It returns the province id.
func (t *Tx) UpsertProvince(ctx context.Context, p Province) (int64, error) {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO provinces (name, population, owner_country_code, terrain, culture, religion, resource_id)
		VALUES (:name, :population, :owner_country_code, :terrain, :culture, :religion, :resource_id)
		ON CONFLICT(name) DO UPDATE SET
			population = excluded.population,
			owner_country_code = excluded.owner_country_code,
			terrain = excluded.terrain,
			culture = excluded.culture,
			religion = excluded.religion,
			resource_id = excluded.resource_id`, p)
	if err != nil {
		return 0, fmt.Errorf("upsert province %s: %w", p.Name, err)
	}
	return t.ProvinceID(ctx, p.Name)
}

// ProvinceID looks a province up by name. It returns 0 when absent.
func (t *Tx) ProvinceID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, "SELECT id FROM provinces WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// InsertState adds a state by name if absent and returns its id.
func (t *Tx) InsertState(ctx context.Context, name string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO states (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("insert state %s: %w", name, err)
	}
	return t.StateID(ctx, name)
}

// StateID looks a state up by name. It returns 0 when absent.
func (t *Tx) StateID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, "SELECT id FROM states WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// LinkStateProvince groups a province under a state.
func (t *Tx) LinkStateProvince(ctx context.Context, stateID, provinceID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO state_provinces (state_id, province_id) VALUES (?, ?)", stateID, provinceID)
	return err
}

// SetEconomy creates or resets a country's treasury and tax rate.
func (t *Tx) SetEconomy(ctx context.Context, country string, treasury int64, taxRate float64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO country_economy (country_code, treasury, tax_rate)
		VALUES (?, ?, ?)
		ON CONFLICT(country_code) DO UPDATE SET
			treasury = excluded.treasury,
			tax_rate = excluded.tax_rate`, country, treasury, taxRate)
	if err != nil {
		return fmt.Errorf("set economy %s: %w", country, err)
	}
	return nil
}

// SetModifier writes a master modifier definition.
func (t *Tx) SetModifier(ctx context.Context, key, description string, defaultValue float64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO modifiers (modifier_key, description, default_value)
		VALUES (?, ?, ?)
		ON CONFLICT(modifier_key) DO UPDATE SET
			description = excluded.description,
			default_value = excluded.default_value`, key, description, defaultValue)
	return err
}

// SetCountryModifier writes a country's fractional override for key.
func (t *Tx) SetCountryModifier(ctx context.Context, country, key string, value float64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO country_modifiers (country_code, modifier_key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(country_code, modifier_key) DO UPDATE SET value = excluded.value`,
		country, key, value)
	return err
}

// InsertBuildingType adds a building type and returns its id.
func (t *Tx) InsertBuildingType(ctx context.Context, b BuildingType) (int64, error) {
	res, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO building_types (name, base_tax_income, base_production, base_upkeep, base_cost)
		VALUES (:name, :base_tax_income, :base_production, :base_upkeep, :base_cost)`, b)
	if err != nil {
		return 0, fmt.Errorf("insert building type %s: %w", b.Name, err)
	}
	return res.LastInsertId()
}

// InsertBuildingEffect adds a modifier contribution to a building type.
func (t *Tx) InsertBuildingEffect(ctx context.Context, e BuildingEffect) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO building_effects (building_type_id, scope, modifier_key, value)
		VALUES (:building_type_id, :scope, :modifier_key, :value)`, e)
	return err
}

// InsertUnitType adds a unit type and returns its id.
func (t *Tx) InsertUnitType(ctx context.Context, u UnitType) (int64, error) {
	res, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO unit_types (name, recruitment_cost, upkeep_cost, attack, defense)
		VALUES (:name, :recruitment_cost, :upkeep_cost, :attack, :defense)`, u)
	if err != nil {
		return 0, fmt.Errorf("insert unit type %s: %w", u.Name, err)
	}
	return res.LastInsertId()
}

// InsertResource adds a resource and returns its id.
func (t *Tx) InsertResource(ctx context.Context, name string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, "INSERT INTO resources (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("insert resource %s: %w", name, err)
	}
	return res.LastInsertId()
}

// ── Point reads ────────────────────────────────────────────────────────

// SavedEconomy reads back the full economy record of a country.
func (t *Tx) SavedEconomy(ctx context.Context, country string) (EconomySnapshot, error) {
	var s EconomySnapshot
	err := t.tx.QueryRowxContext(ctx, `
		SELECT treasury, tax_income, building_income, total_income,
			administration_cost, military_upkeep, building_upkeep,
			total_expenses, total_population
		FROM country_economy WHERE country_code = ?`, country).Scan(
		&s.Treasury, &s.TaxIncome, &s.BuildingIncome, &s.TotalIncome,
		&s.AdministrationCost, &s.MilitaryUpkeep, &s.BuildingUpkeep,
		&s.TotalExpenses, &s.TotalPopulation,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("%s: %w", country, ErrNoEconomy)
	}
	return s, err
}

// BuildingAmount returns how many buildings of a type stand in a province.
func (t *Tx) BuildingAmount(ctx context.Context, provinceID, buildingTypeID int64) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(amount), 0) FROM province_buildings
		WHERE province_id = ? AND building_type_id = ?`, provinceID, buildingTypeID)
	return n, err
}

// UnitAmount returns how many units of a type a country fields.
func (t *Tx) UnitAmount(ctx context.Context, country string, unitTypeID int64) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(amount), 0) FROM country_units
		WHERE country_code = ? AND unit_type_id = ?`, country, unitTypeID)
	return n, err
}

// SetBuildings overwrites a province's building count.
func (t *Tx) SetBuildings(ctx context.Context, provinceID, buildingTypeID, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO province_buildings (province_id, building_type_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(province_id, building_type_id) DO UPDATE SET amount = excluded.amount`,
		provinceID, buildingTypeID, amount)
	return err
}

// SetUnits overwrites a country's unit count.
func (t *Tx) SetUnits(ctx context.Context, country string, unitTypeID, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO country_units (country_code, unit_type_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(country_code, unit_type_id) DO UPDATE SET amount = excluded.amount`,
		country, unitTypeID, amount)
	return err
}

// MoveProcessed reports the processed flag of a move.
func (t *Tx) MoveProcessed(ctx context.Context, moveID int64) (bool, error) {
	var p bool
	err := t.tx.GetContext(ctx, &p, "SELECT processed FROM player_moves WHERE id = ?", moveID)
	return p, err
}

// EnsureResource returns the id of the named resource, creating it if absent.
func (t *Tx) EnsureResource(ctx context.Context, name string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO resources (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("ensure resource %s: %w", name, err)
	}
	var id int64
	err := t.tx.GetContext(ctx, &id, "SELECT id FROM resources WHERE name = ?", name)
	return id, err
}
