package recon

import (
	"sort"
	"time"

	"SecSubledger/internal/blotter"
	"SecSubledger/internal/gl"

	"github.com/shopspring/decimal"
)

// MTMControlRecord compares, per position per date, the source valuation
// level against the cumulative GL revaluation balance reconstructed from
// postings. Missing GL rows count as zero balance.
type MTMControlRecord struct {
	Group      blotter.GroupKey
	Date       time.Time
	SourceMTM  decimal.Decimal
	GLBalance  decimal.Decimal
	DayChange  decimal.Decimal
	Difference decimal.Decimal // gl balance - source mtm
	Break      bool
}

// PortfolioMTMControlRecord aggregates the MTM control across all positions
// to one row per date: Σ source valuation vs Σ GL revaluation balance.
type PortfolioMTMControlRecord struct {
	Date       time.Time
	SourceMTM  decimal.Decimal
	GLBalance  decimal.Decimal
	Difference decimal.Decimal
	Break      bool
}

// MTMGLControl joins the valuation time series with the revaluation balances
// derived by gl.RevaluationBalances, keyed by (group, date).
func (c *Checker) MTMGLControl(series []blotter.ValuationSnapshot, balances []gl.GroupDateBalance) []MTMControlRecord {
	derived := make(map[blotter.GroupDate]gl.GroupDateBalance, len(balances))
	for _, b := range balances {
		derived[blotter.GroupDate{Group: b.Group, Date: b.Date}] = b
	}

	sorted := make([]blotter.ValuationSnapshot, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := sorted[i].Group(), sorted[j].Group()
		if gi != gj {
			return gi.Less(gj)
		}
		return sorted[i].AsOfDate.Before(sorted[j].AsOfDate)
	})

	out := make([]MTMControlRecord, 0, len(sorted))
	for _, v := range sorted {
		rec := MTMControlRecord{
			Group:     v.Group(),
			Date:      v.AsOfDate,
			SourceMTM: v.MTM,
		}
		if b, ok := derived[blotter.GroupDate{Group: rec.Group, Date: rec.Date}]; ok {
			rec.GLBalance = b.Balance
			rec.DayChange = b.DayChange
		}
		rec.Difference = rec.GLBalance.Sub(rec.SourceMTM)
		rec.Break = c.isBreak(rec.Difference)
		out = append(out, rec)
	}
	return out
}

// PortfolioMTMControl rolls the per-position MTM control up to one record per
// date across the whole portfolio.
func (c *Checker) PortfolioMTMControl(records []MTMControlRecord) []PortfolioMTMControlRecord {
	type agg struct{ src, bal decimal.Decimal }
	byDate := make(map[time.Time]*agg)
	for _, r := range records {
		a, ok := byDate[r.Date]
		if !ok {
			a = &agg{}
			byDate[r.Date] = a
		}
		a.src = a.src.Add(r.SourceMTM)
		a.bal = a.bal.Add(r.GLBalance)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]PortfolioMTMControlRecord, 0, len(dates))
	for _, d := range dates {
		a := byDate[d]
		rec := PortfolioMTMControlRecord{
			Date:       d,
			SourceMTM:  a.src,
			GLBalance:  a.bal,
			Difference: a.bal.Sub(a.src),
		}
		rec.Break = c.isBreak(rec.Difference)
		out = append(out, rec)
	}
	return out
}
