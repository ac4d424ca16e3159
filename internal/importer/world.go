package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/talgya/tgsim/internal/persistence"
)

// WorldStats counts what ImportWorld wrote and skipped.
type WorldStats struct {
	Countries int
	Economies int
	Provinces int
	States    int
	Links     int
	Skipped   int
}

// ImportWorld loads the reference map from dir. countries.csv and
// provinces.csv are required; states.csv, state_provinces.csv and
// economy.csv are read when present. Rows are upserted by name, so the
// import can be re-run over an existing world. Rows with a bad population
// or an unknown reference are skipped with a warning.
func ImportWorld(ctx context.Context, store Store, dir string) (WorldStats, error) {
	var stats WorldStats
	err := store.WithTx(ctx, func(tx *persistence.Tx) error {
		stats = WorldStats{}
		steps := []struct {
			file     string
			required bool
			columns  []string
			load     func(*persistence.Tx, header, [][]string) error
		}{
			{"countries.csv", true, []string{"code", "name"}, func(tx *persistence.Tx, h header, recs [][]string) error {
				return importCountries(ctx, tx, h, recs, &stats)
			}},
			{"economy.csv", false, []string{"country_code", "treasury", "tax_rate"}, func(tx *persistence.Tx, h header, recs [][]string) error {
				return importEconomy(ctx, tx, h, recs, &stats)
			}},
			{"provinces.csv", true, []string{"name", "population", "owner_country_code"}, func(tx *persistence.Tx, h header, recs [][]string) error {
				return importProvinces(ctx, tx, h, recs, &stats)
			}},
			{"states.csv", false, []string{"name"}, func(tx *persistence.Tx, h header, recs [][]string) error {
				return importStates(ctx, tx, h, recs, &stats)
			}},
			{"state_provinces.csv", false, []string{"state_name", "province_name"}, func(tx *persistence.Tx, h header, recs [][]string) error {
				return importLinks(ctx, tx, h, recs, &stats)
			}},
		}

		for _, s := range steps {
			recs, h, err := readFile(filepath.Join(dir, s.file), s.columns)
			if errors.Is(err, fs.ErrNotExist) && !s.required {
				slog.Debug("optional world file absent", "file", s.file)
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: %w", s.file, err)
			}
			if err := s.load(tx, h, recs); err != nil {
				return fmt.Errorf("%s: %w", s.file, err)
			}
		}
		return nil
	})
	if err != nil {
		return WorldStats{}, err
	}

	slog.Info("world imported",
		"countries", stats.Countries,
		"provinces", stats.Provinces,
		"states", stats.States,
		"links", stats.Links,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func readFile(path string, required []string) ([][]string, header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return readCSV(f, required)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func importCountries(ctx context.Context, tx *persistence.Tx, h header, recs [][]string, stats *WorldStats) error {
	for _, rec := range recs {
		c := persistence.Country{
			Code:     h.get(rec, "code"),
			Name:     h.get(rec, "name"),
			Culture:  optional(h.get(rec, "culture")),
			Religion: optional(h.get(rec, "religion")),
		}
		if c.Code == "" || c.Name == "" {
			slog.Warn("skipping country without code or name", "row", rec)
			stats.Skipped++
			continue
		}
		if err := tx.UpsertCountry(ctx, c); err != nil {
			return err
		}
		stats.Countries++
	}
	return nil
}

func importEconomy(ctx context.Context, tx *persistence.Tx, h header, recs [][]string, stats *WorldStats) error {
	known, err := countrySet(ctx, tx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		code := h.get(rec, "country_code")
		if !known[code] {
			slog.Warn("skipping economy for unknown country", "country", code)
			stats.Skipped++
			continue
		}
		treasury, err := strconv.ParseInt(h.get(rec, "treasury"), 10, 64)
		if err != nil {
			slog.Warn("skipping economy with bad treasury", "country", code, "error", err)
			stats.Skipped++
			continue
		}
		rate, err := strconv.ParseFloat(h.get(rec, "tax_rate"), 64)
		if err != nil {
			slog.Warn("skipping economy with bad tax rate", "country", code, "error", err)
			stats.Skipped++
			continue
		}
		if err := tx.SetEconomy(ctx, code, treasury, rate); err != nil {
			return err
		}
		stats.Economies++
	}
	return nil
}

func importProvinces(ctx context.Context, tx *persistence.Tx, h header, recs [][]string, stats *WorldStats) error {
	known, err := countrySet(ctx, tx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		name := h.get(rec, "name")
		pop, err := strconv.ParseInt(h.get(rec, "population"), 10, 64)
		if name == "" || err != nil || pop < 0 {
			slog.Warn("skipping province with bad population", "province", name, "population", h.get(rec, "population"))
			stats.Skipped++
			continue
		}

		p := persistence.Province{
			Name:       name,
			Population: pop,
			Owner:      optional(h.get(rec, "owner_country_code")),
			Terrain:    optional(h.get(rec, "terrain")),
			Culture:    optional(h.get(rec, "culture")),
			Religion:   optional(h.get(rec, "religion")),
		}
		if p.Owner != nil && !known[*p.Owner] {
			slog.Warn("skipping province with unknown owner", "province", name, "owner", *p.Owner)
			stats.Skipped++
			continue
		}
		if res := h.get(rec, "resource"); res != "" {
			id, err := tx.EnsureResource(ctx, res)
			if err != nil {
				return err
			}
			p.ResourceID = &id
		}

		if _, err := tx.UpsertProvince(ctx, p); err != nil {
			return err
		}
		stats.Provinces++
	}
	return nil
}

func importStates(ctx context.Context, tx *persistence.Tx, h header, recs [][]string, stats *WorldStats) error {
	for _, rec := range recs {
		name := h.get(rec, "name")
		if name == "" {
			stats.Skipped++
			continue
		}
		if _, err := tx.InsertState(ctx, name); err != nil {
			return err
		}
		stats.States++
	}
	return nil
}

func importLinks(ctx context.Context, tx *persistence.Tx, h header, recs [][]string, stats *WorldStats) error {
	for _, rec := range recs {
		stateName, provName := h.get(rec, "state_name"), h.get(rec, "province_name")
		stateID, err := tx.StateID(ctx, stateName)
		if err != nil {
			return err
		}
		provID, err := tx.ProvinceID(ctx, provName)
		if err != nil {
			return err
		}
		if stateID == 0 || provID == 0 {
			slog.Warn("skipping state link with unknown reference", "state", stateName, "province", provName)
			stats.Skipped++
			continue
		}
		if err := tx.LinkStateProvince(ctx, stateID, provID); err != nil {
			return err
		}
		stats.Links++
	}
	return nil
}

func countrySet(ctx context.Context, tx *persistence.Tx) (map[string]bool, error) {
	codes, err := tx.CountryCodes(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set, nil
}
