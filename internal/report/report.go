// Package report renders tick and move-batch results for the terminal.
package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tgsim/internal/engine"
	"github.com/talgya/tgsim/internal/moves"
)

// money formats a treasury amount with thousands separators.
func money(v int64) string {
	return humanize.Comma(v)
}

// amount truncates a breakdown term the way the stored record does.
func amount(v float64) string {
	return humanize.Comma(int64(v))
}

func signed(v int64) string {
	if v > 0 {
		return "+" + money(v)
	}
	return money(v)
}

// WriteTick prints one block per country: the income and expense
// breakdown, the treasury change and the capped stockpile.
func WriteTick(w io.Writer, r engine.TickReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Economy tick %s: %d countries\n", r.RunID, len(r.Countries))
	for _, c := range r.Countries {
		l := c.Ledger
		fmt.Fprintf(tw, "\n%s\tpop %s\tprovinces %d\n", c.Country, humanize.Comma(c.Facts.Population), c.Facts.Provinces)
		m := c.Modifiers
		fmt.Fprintf(tw, "  modifiers\ttax eff x%.2f  admin x%.2f  units x%.2f  upkeep x%.2f  buildings x%.2f\n",
			m.TaxEfficiency, m.AdminCost, m.UnitLimit, m.MilitaryUpkeep, m.BuildingIncomeMult)
		fmt.Fprintf(tw, "  buildings raw\tincome %s  upkeep %s\n",
			humanize.Commaf(math.Round(c.Facts.BuildingIncomeRaw*100)/100),
			humanize.Commaf(math.Round(c.Facts.BuildingUpkeep*100)/100))
		fmt.Fprintf(tw, "  tax income\t%s\n", amount(l.TaxIncome))
		fmt.Fprintf(tw, "  building income\t%s\n", amount(l.BuildingIncome))
		fmt.Fprintf(tw, "  administration\t-%s\n", amount(l.AdministrationCost))
		fmt.Fprintf(tw, "  military upkeep\t-%s\n", amount(l.MilitaryUpkeep))
		fmt.Fprintf(tw, "  building upkeep\t-%s\n", amount(l.BuildingUpkeep))
		fmt.Fprintf(tw, "  balance\t%s\n", signed(l.Balance()))
		fmt.Fprintf(tw, "  treasury\t%s -> %s\n", money(l.OldTreasury), money(l.NewTreasury))
		fmt.Fprintf(tw, "  units\t%d / %d\n", c.Facts.TotalUnits, l.UnitLimit)

		for _, p := range c.Production {
			fmt.Fprintf(tw, "  produced\t+%s %s\n", humanize.Commaf(p.Amount), p.Name)
		}
		if len(c.Stockpile) > 0 {
			fmt.Fprintf(tw, "  stockpile\t%s / %s\n",
				humanize.Commaf(math.Round(c.TotalStockpile()*100)/100),
				humanize.Commaf(c.ResourceCap))
			for _, s := range c.Stockpile {
				fmt.Fprintf(tw, "    %s\t%s\n", s.Name, humanize.Commaf(math.Round(s.Amount*100)/100))
			}
		}
		if c.CapExcess > 0 {
			fmt.Fprintf(tw, "  over cap\t%s discarded\n", humanize.Commaf(math.Round(c.CapExcess*100)/100))
		}
	}
	for _, code := range r.Skipped {
		fmt.Fprintf(tw, "\n%s\tskipped: no economy record\n", code)
	}
	return tw.Flush()
}

// WriteMoves prints every decision of a batch followed by the totals.
func WriteMoves(w io.Writer, r moves.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Move batch %s\n", r.BatchID)
	if len(r.Decisions) == 0 {
		fmt.Fprintln(tw, "no pending moves")
		return tw.Flush()
	}

	fmt.Fprintln(tw, "ID\tTURN\tCOUNTRY\tTYPE\tAMOUNT\tCOST\tOUTCOME")
	for _, d := range r.Decisions {
		m := d.Move
		outcome := d.Outcome.String()
		if d.Reason != "" {
			outcome += " (" + d.Reason + ")"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
			m.ID, m.Turn, m.Country, m.Type, m.Amount, money(d.Cost), outcome)
	}
	fmt.Fprintf(tw, "\n%d approved, %d rejected, %d executed\n", r.Approved(), r.Rejected(), r.Executed)
	return tw.Flush()
}
