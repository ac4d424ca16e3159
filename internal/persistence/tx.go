package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNoEconomy is returned when a country has no country_economy row.
var ErrNoEconomy = errors.New("no economy row")

// Tx is an open transaction. Every read and write turn resolution performs
// goes through a Tx so that a tick or a move batch commits as one unit.
type Tx struct {
	tx *sqlx.Tx
}

// ── Countries & demographics ───────────────────────────────────────────

// CountryCodes returns every country code in code order.
func (t *Tx) CountryCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := t.tx.SelectContext(ctx, &codes, "SELECT code FROM countries ORDER BY code")
	return codes, err
}

// Economy loads the treasury and tax rate of a country.
func (t *Tx) Economy(ctx context.Context, country string) (EconomyRow, error) {
	var row EconomyRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT country_code, treasury, tax_rate FROM country_economy WHERE country_code = ?", country)
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("%s: %w", country, ErrNoEconomy)
	}
	return row, err
}

// Treasuries returns every country's current treasury.
func (t *Tx) Treasuries(ctx context.Context) (map[string]int64, error) {
	var rows []EconomyRow
	if err := t.tx.SelectContext(ctx, &rows,
		"SELECT country_code, treasury, tax_rate FROM country_economy"); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.CountryCode] = r.Treasury
	}
	return out, nil
}

// Population sums the population of the provinces a country owns.
func (t *Tx) Population(ctx context.Context, country string) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n,
		"SELECT COALESCE(SUM(population), 0) FROM provinces WHERE owner_country_code = ?", country)
	return n, err
}

// ProvinceCount counts the provinces a country owns.
func (t *Tx) ProvinceCount(ctx context.Context, country string) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM provinces WHERE owner_country_code = ?", country)
	return n, err
}

// ProvinceOwnedBy reports whether the province exists and belongs to country.
func (t *Tx) ProvinceOwnedBy(ctx context.Context, provinceID int64, country string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM provinces WHERE id = ? AND owner_country_code = ?", provinceID, country)
	return n > 0, err
}

// ── Military ───────────────────────────────────────────────────────────

// MilitaryUpkeep is Σ amount × upkeep_cost over the country's units.
func (t *Tx) MilitaryUpkeep(ctx context.Context, country string) (float64, error) {
	var v float64
	err := t.tx.GetContext(ctx, &v, `
		SELECT COALESCE(SUM(cu.amount * ut.upkeep_cost), 0.0)
		FROM country_units cu
		JOIN unit_types ut ON cu.unit_type_id = ut.id
		WHERE cu.country_code = ?`, country)
	return v, err
}

// TotalUnits counts every unit a country fields.
func (t *Tx) TotalUnits(ctx context.Context, country string) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n,
		"SELECT COALESCE(SUM(amount), 0) FROM country_units WHERE country_code = ?", country)
	return n, err
}

// UnitCost returns the recruitment cost of a unit type; ok is false when the
// type does not exist.
func (t *Tx) UnitCost(ctx context.Context, unitTypeID int64) (cost int64, ok bool, err error) {
	err = t.tx.GetContext(ctx, &cost, "SELECT recruitment_cost FROM unit_types WHERE id = ?", unitTypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return cost, err == nil, err
}

// ── Buildings ──────────────────────────────────────────────────────────

// BuildingEconomy returns the raw building income and upkeep over the
// provinces a country owns.
func (t *Tx) BuildingEconomy(ctx context.Context, country string) (income, upkeep float64, err error) {
	row := t.tx.QueryRowxContext(ctx, `
		SELECT
			COALESCE(SUM(bt.base_tax_income * pb.amount), 0.0),
			COALESCE(SUM(bt.base_upkeep * pb.amount), 0.0)
		FROM province_buildings pb
		JOIN building_types bt ON pb.building_type_id = bt.id
		JOIN provinces p ON pb.province_id = p.id
		WHERE p.owner_country_code = ?`, country)
	err = row.Scan(&income, &upkeep)
	return income, upkeep, err
}

// BuildingCost returns the base cost of a building type; ok is false when the
// type does not exist.
func (t *Tx) BuildingCost(ctx context.Context, buildingTypeID int64) (cost int64, ok bool, err error) {
	err = t.tx.GetContext(ctx, &cost, "SELECT base_cost FROM building_types WHERE id = ?", buildingTypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return cost, err == nil, err
}

// ── Modifiers ──────────────────────────────────────────────────────────

// ModifierDefault returns the master default for key; ok is false when the
// key has no master row.
func (t *Tx) ModifierDefault(ctx context.Context, key string) (value float64, ok bool, err error) {
	err = t.tx.GetContext(ctx, &value, "SELECT default_value FROM modifiers WHERE modifier_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return value, err == nil, err
}

// CountryOverride returns the fractional override for (country, key), or 0.
func (t *Tx) CountryOverride(ctx context.Context, country, key string) (float64, error) {
	var v float64
	err := t.tx.GetContext(ctx, &v,
		"SELECT value FROM country_modifiers WHERE country_code = ? AND modifier_key = ?", country, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// BuildingContribution is Σ effect.value × amount over country-scope effects
// for key on buildings in the country's provinces.
func (t *Tx) BuildingContribution(ctx context.Context, country, key string) (float64, error) {
	var v float64
	err := t.tx.GetContext(ctx, &v, `
		SELECT COALESCE(SUM(be.value * pb.amount), 0.0)
		FROM province_buildings pb
		JOIN building_effects be ON pb.building_type_id = be.building_type_id
		JOIN provinces p ON pb.province_id = p.id
		WHERE p.owner_country_code = ?
		AND be.scope = 'country'
		AND be.modifier_key = ?`, country, key)
	return v, err
}

// ── Resources ──────────────────────────────────────────────────────────

// ResourceNames maps resource id to name.
func (t *Tx) ResourceNames(ctx context.Context) (map[int64]string, error) {
	rows, err := t.tx.QueryxContext(ctx, "SELECT id, name FROM resources")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// ResourceProvinceCounts counts owned provinces per resource type.
func (t *Tx) ResourceProvinceCounts(ctx context.Context, country string) (map[int64]int64, error) {
	rows, err := t.tx.QueryxContext(ctx, `
		SELECT resource_id, COUNT(*)
		FROM provinces
		WHERE owner_country_code = ?
		AND resource_id IS NOT NULL
		GROUP BY resource_id`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// Stockpiles returns a country's stockpile rows ordered by resource name.
func (t *Tx) Stockpiles(ctx context.Context, country string) ([]Stockpile, error) {
	var out []Stockpile
	err := t.tx.SelectContext(ctx, &out, `
		SELECT cr.resource_id, r.name, cr.stockpile
		FROM country_resources cr
		JOIN resources r ON cr.resource_id = r.id
		WHERE cr.country_code = ?
		ORDER BY r.name`, country)
	return out, err
}

// AddStockpile adds amount to a stockpile, creating the row if absent.
func (t *Tx) AddStockpile(ctx context.Context, country string, resourceID int64, amount float64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO country_resources (country_code, resource_id, stockpile)
		VALUES (?, ?, ?)
		ON CONFLICT(country_code, resource_id)
		DO UPDATE SET stockpile = stockpile + excluded.stockpile`, country, resourceID, amount)
	if err != nil {
		return fmt.Errorf("add stockpile %s/%d: %w", country, resourceID, err)
	}
	return nil
}

// SetStockpile overwrites a stockpile value.
func (t *Tx) SetStockpile(ctx context.Context, country string, resourceID int64, amount float64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE country_resources SET stockpile = ? WHERE country_code = ? AND resource_id = ?",
		amount, country, resourceID)
	if err != nil {
		return fmt.Errorf("set stockpile %s/%d: %w", country, resourceID, err)
	}
	return nil
}

// ── Economy writes ─────────────────────────────────────────────────────

// SaveEconomy rewrites the derived economy fields and treasury in one update.
func (t *Tx) SaveEconomy(ctx context.Context, country string, s EconomySnapshot) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE country_economy SET
			treasury = ?,
			tax_income = ?,
			building_income = ?,
			total_income = ?,
			administration_cost = ?,
			military_upkeep = ?,
			building_upkeep = ?,
			total_expenses = ?,
			total_population = ?
		WHERE country_code = ?`,
		s.Treasury, s.TaxIncome, s.BuildingIncome, s.TotalIncome,
		s.AdministrationCost, s.MilitaryUpkeep, s.BuildingUpkeep,
		s.TotalExpenses, s.TotalPopulation, country,
	)
	if err != nil {
		return fmt.Errorf("save economy %s: %w", country, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save economy %s: %w", country, ErrNoEconomy)
	}
	return nil
}

// DebitTreasury subtracts cost from a country's treasury.
func (t *Tx) DebitTreasury(ctx context.Context, country string, cost int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE country_economy SET treasury = treasury - ? WHERE country_code = ?", cost, country)
	if err != nil {
		return fmt.Errorf("debit %s: %w", country, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("debit %s: %w", country, ErrNoEconomy)
	}
	return nil
}

// ── Move writes ────────────────────────────────────────────────────────

// AddBuildings adds amount buildings of a type to a province.
func (t *Tx) AddBuildings(ctx context.Context, provinceID, buildingTypeID, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO province_buildings (province_id, building_type_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(province_id, building_type_id)
		DO UPDATE SET amount = amount + excluded.amount`, provinceID, buildingTypeID, amount)
	if err != nil {
		return fmt.Errorf("add buildings %d/%d: %w", provinceID, buildingTypeID, err)
	}
	return nil
}

// AddUnits adds amount units of a type to a country.
func (t *Tx) AddUnits(ctx context.Context, country string, unitTypeID, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO country_units (country_code, unit_type_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(country_code, unit_type_id)
		DO UPDATE SET amount = amount + excluded.amount`, country, unitTypeID, amount)
	if err != nil {
		return fmt.Errorf("add units %s/%d: %w", country, unitTypeID, err)
	}
	return nil
}

// PendingMoves returns unprocessed moves ordered by turn then id.
func (t *Tx) PendingMoves(ctx context.Context) ([]MoveRow, error) {
	var out []MoveRow
	err := t.tx.SelectContext(ctx, &out, `
		SELECT id, turn, country_code, move_type,
			target_province_id, target_building_type_id, target_unit_type_id,
			amount, notes, processed
		FROM player_moves
		WHERE processed = 0
		ORDER BY turn, id`)
	return out, err
}

// MarkProcessed flags a pending move as consumed. It reports false when the
// move was already processed (or does not exist) and leaves it untouched.
func (t *Tx) MarkProcessed(ctx context.Context, moveID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE player_moves SET processed = 1 WHERE id = ? AND processed = 0", moveID)
	if err != nil {
		return false, fmt.Errorf("mark move %d: %w", moveID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark move %d: %w", moveID, err)
	}
	return n > 0, nil
}

// MovesForTurn counts moves already imported for a turn.
func (t *Tx) MovesForTurn(ctx context.Context, turn int64) (int64, error) {
	var n int64
	err := t.tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM player_moves WHERE turn = ?", turn)
	return n, err
}

// InsertMove appends a pending move and returns its id.
func (t *Tx) InsertMove(ctx context.Context, m MoveRow) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO player_moves (
			turn, country_code, move_type,
			target_province_id, target_building_type_id, target_unit_type_id,
			amount, notes, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		m.Turn, m.CountryCode, m.MoveType,
		m.TargetProvinceID, m.TargetBuildingTypeID, m.TargetUnitTypeID,
		m.Amount, m.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert move: %w", err)
	}
	return res.LastInsertId()
}
