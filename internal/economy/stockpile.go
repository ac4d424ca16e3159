// Resource stockpiles: per-turn production and the shared storage cap.

package economy

import (
	"sort"

	"github.com/talgya/tgsim/internal/persistence"
)

// Production is the amount of one resource a country produces this turn.
type Production struct {
	ResourceID int64
	Name       string
	Amount     float64
}

// ResourceProduction turns owned-province counts per resource into this
// turn's production, ordered by resource id.
func ResourceProduction(counts map[int64]int64, perProvince int, names map[int64]string) []Production {
	out := make([]Production, 0, len(counts))
	for id, n := range counts {
		name, ok := names[id]
		if !ok {
			name = "unknown"
		}
		out = append(out, Production{
			ResourceID: id,
			Name:       name,
			Amount:     float64(n * int64(perProvince)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// StockpileCap is the total a country may hold across all resources.
func StockpileCap(provinces int64, capPerProvince int) float64 {
	return float64(provinces) * float64(capPerProvince)
}

// TotalStockpile sums every row.
func TotalStockpile(rows []persistence.Stockpile) float64 {
	var total float64
	for _, r := range rows {
		total += r.Amount
	}
	return total
}

// ScaleToCap reduces stockpiles proportionally so their sum equals limit.
// Shares are taken against the pre-reduction total for every row, then all
// rows are reduced from that snapshot, so the result does not depend on row
// order. Rows are returned unchanged (and excess is 0) when the total is
// already within the limit.
func ScaleToCap(rows []persistence.Stockpile, limit float64) (scaled []persistence.Stockpile, excess float64) {
	total := TotalStockpile(rows)
	scaled = make([]persistence.Stockpile, len(rows))
	copy(scaled, rows)
	if total <= limit {
		return scaled, 0
	}

	excess = total - limit
	shares := make([]float64, len(rows))
	for i, r := range rows {
		shares[i] = r.Amount / total
	}
	for i := range scaled {
		scaled[i].Amount = rows[i].Amount - shares[i]*excess
	}
	return scaled, excess
}
