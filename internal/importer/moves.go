// Package importer loads CSV exports into the store: the world reference
// data once, and each turn's player moves.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/talgya/tgsim/internal/persistence"
)

// ErrTurnImported is returned when moves for a turn are already present.
var ErrTurnImported = errors.New("turn already imported")

// Store opens the transaction an import runs in.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *persistence.Tx) error) error
}

var moveColumns = []string{
	"country_code", "move_type", "province_id", "building_type_id",
	"unit_type_id", "amount", "notes",
}

// MovesFile is the conventional path of a turn's moves export.
func MovesFile(dir string, turn int64) string {
	return filepath.Join(dir, fmt.Sprintf("player_moves_turn_%d.csv", turn))
}

// ImportMovesFile imports the moves export for turn from dir.
func ImportMovesFile(ctx context.Context, store Store, dir string, turn int64) (int, error) {
	path := MovesFile(dir, turn)
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open moves file: %w", err)
	}
	defer f.Close()
	return ImportMoves(ctx, store, turn, f)
}

// ImportMoves reads a moves CSV and stores every row as a pending move for
// turn. A turn is imported at most once; the whole file is rejected if the
// turn already has moves, a required column is missing or any row is bad.
func ImportMoves(ctx context.Context, store Store, turn int64, r io.Reader) (int, error) {
	records, header, err := readCSV(r, moveColumns)
	if err != nil {
		return 0, err
	}

	var count int
	err = store.WithTx(ctx, func(tx *persistence.Tx) error {
		existing, err := tx.MovesForTurn(ctx, turn)
		if err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("turn %d: %w", turn, ErrTurnImported)
		}

		for i, rec := range records {
			row, err := parseMove(header, rec, turn)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+2, err)
			}
			if _, err := tx.InsertMove(ctx, row); err != nil {
				return fmt.Errorf("line %d: %w", i+2, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("moves imported", "turn", turn, "count", count)
	return count, nil
}

func parseMove(h header, rec []string, turn int64) (persistence.MoveRow, error) {
	row := persistence.MoveRow{
		Turn:        turn,
		CountryCode: h.get(rec, "country_code"),
		MoveType:    h.get(rec, "move_type"),
		Amount:      1,
	}
	if row.CountryCode == "" {
		return row, fmt.Errorf("missing country_code")
	}

	var err error
	if row.TargetProvinceID, err = optionalID(h.get(rec, "province_id")); err != nil {
		return row, fmt.Errorf("province_id: %w", err)
	}
	if row.TargetBuildingTypeID, err = optionalID(h.get(rec, "building_type_id")); err != nil {
		return row, fmt.Errorf("building_type_id: %w", err)
	}
	if row.TargetUnitTypeID, err = optionalID(h.get(rec, "unit_type_id")); err != nil {
		return row, fmt.Errorf("unit_type_id: %w", err)
	}
	if s := h.get(rec, "amount"); s != "" {
		if row.Amount, err = strconv.ParseInt(s, 10, 64); err != nil {
			return row, fmt.Errorf("amount: %w", err)
		}
	}
	if notes := h.get(rec, "notes"); notes != "" {
		row.Notes = &notes
	}
	return row, nil
}

func optionalID(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// header maps column names to positions.
type header map[string]int

func (h header) get(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// readCSV reads every record and checks the required columns are present.
func readCSV(r io.Reader, required []string) ([][]string, header, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	h := make(header, len(first))
	for i, name := range first {
		h[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing csv columns: %s", strings.Join(missing, ", "))
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	return records, h, nil
}
