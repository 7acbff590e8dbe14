// Package alloc spreads position-level MTM valuations across open trade lots
// pro-rata by open notional.
package alloc

import (
	"time"

	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

// valuationRow is the joined feed value for one group.
type valuationRow struct {
	mtm  decimal.Decimal
	date time.Time
}

// Allocate joins open trades to the position-level valuation feed on group key
// and splits each group's MTM across its lots by open_notional / Σ open_notional.
//
// Groups with zero total notional allocate zero to every member. Groups with
// no valuation row keep ValuationKnown=false and allocate zero; the gap is a
// reconciliation matter, not an error. When the feed carries more than one row
// per group the last row wins.
func Allocate(open []blotter.OpenTrade, valuations []blotter.ValuationSnapshot) []blotter.AllocatedTrade {
	feed := make(map[blotter.GroupKey]valuationRow, len(valuations))
	for _, v := range valuations {
		feed[v.Group()] = valuationRow{mtm: v.MTM, date: v.AsOfDate}
	}

	totals := make(map[blotter.GroupKey]decimal.Decimal)
	for _, ot := range open {
		g := ot.Group()
		totals[g] = totals[g].Add(ot.OpenNotional())
	}

	out := make([]blotter.AllocatedTrade, 0, len(open))
	for _, ot := range open {
		g := ot.Group()
		at := blotter.AllocatedTrade{
			OpenTrade:    ot,
			OpenNotional: ot.OpenNotional(),
			MTMAllocated: decimal.Zero,
		}

		row, ok := feed[g]
		if ok {
			at.Valuation = row.mtm
			at.ValuationKnown = true
			at.SnapshotDate = row.date
		}

		total := totals[g]
		if ok && !total.IsZero() {
			at.MTMAllocated = row.mtm.Mul(at.OpenNotional).Div(total)
		}

		out = append(out, at)
	}
	return out
}
