package persistence

// EconomyRow is the carried-over part of a country's economy record.
type EconomyRow struct {
	CountryCode string  `db:"country_code"`
	Treasury    int64   `db:"treasury"`
	TaxRate     float64 `db:"tax_rate"`
}

// EconomySnapshot is everything a tick writes back to country_economy.
type EconomySnapshot struct {
	Treasury           int64
	TaxIncome          int64
	BuildingIncome     int64
	TotalIncome        int64
	AdministrationCost int64
	MilitaryUpkeep     int64
	BuildingUpkeep     int64
	TotalExpenses      int64
	TotalPopulation    int64
}

// Stockpile is one country_resources row joined with its resource name.
type Stockpile struct {
	ResourceID int64   `db:"resource_id"`
	Name       string  `db:"name"`
	Amount     float64 `db:"stockpile"`
}

// MoveRow is one player_moves row.
type MoveRow struct {
	ID                   int64   `db:"id"`
	Turn                 int64   `db:"turn"`
	CountryCode          string  `db:"country_code"`
	MoveType             string  `db:"move_type"`
	TargetProvinceID     *int64  `db:"target_province_id"`
	TargetBuildingTypeID *int64  `db:"target_building_type_id"`
	TargetUnitTypeID     *int64  `db:"target_unit_type_id"`
	Amount               int64   `db:"amount"`
	Notes                *string `db:"notes"`
	Processed            bool    `db:"processed"`
}

// Reference data rows, written by the importer and by test fixtures.

type Country struct {
	Code     string  `db:"code"`
	Name     string  `db:"name"`
	Culture  *string `db:"culture"`
	Religion *string `db:"religion"`
	Unrest   float64 `db:"unrest"`
}

type Province struct {
	ID         int64   `db:"id"`
	Name       string  `db:"name"`
	Population int64   `db:"population"`
	Owner      *string `db:"owner_country_code"`
	Terrain    *string `db:"terrain"`
	Culture    *string `db:"culture"`
	Religion   *string `db:"religion"`
	ResourceID *int64  `db:"resource_id"`
}

type BuildingType struct {
	ID             int64   `db:"id"`
	Name           string  `db:"name"`
	BaseTaxIncome  float64 `db:"base_tax_income"`
	BaseProduction float64 `db:"base_production"`
	BaseUpkeep     float64 `db:"base_upkeep"`
	BaseCost       int64   `db:"base_cost"`
}

type BuildingEffect struct {
	BuildingTypeID int64   `db:"building_type_id"`
	Scope          string  `db:"scope"`
	ModifierKey    string  `db:"modifier_key"`
	Value          float64 `db:"value"`
}

type UnitType struct {
	ID              int64   `db:"id"`
	Name            string  `db:"name"`
	RecruitmentCost int64   `db:"recruitment_cost"`
	UpkeepCost      float64 `db:"upkeep_cost"`
	Attack          int64   `db:"attack"`
	Defense         int64   `db:"defense"`
}
