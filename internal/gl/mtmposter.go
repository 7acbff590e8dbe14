package gl

import (
	"sort"

	"SecSubledger/internal/blotter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MTMPoster rolls a group's valuation time series forward through the GL:
// each day reverses the prior day's booked valuation and books the new level.
// The net P&L effect equals the day-over-day change while the revaluation
// account always carries the latest level.
type MTMPoster struct {
	chart Chart
}

func NewMTMPoster(chart Chart) *MTMPoster {
	return &MTMPoster{chart: chart}
}

// PostSeries processes one group's valuation rows in as-of date order,
// starting from prev_mtm = 0. Per date it emits a reversal batch for the
// prior valuation (when nonzero) and a booking batch for today's valuation
// (when nonzero). prev_mtm advances to today's value either way.
func (mp *MTMPoster) PostSeries(series []blotter.ValuationSnapshot) []Batch {
	sorted := make([]blotter.ValuationSnapshot, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AsOfDate.Before(sorted[j].AsOfDate)
	})

	prevMTM := decimal.Zero
	batches := make([]Batch, 0, 2*len(sorted))

	for _, v := range sorted {
		if !prevMTM.IsZero() {
			batches = append(batches, mp.doubleEntry(v, prevMTM.Neg(), PostingMTMReversal))
		}
		if !v.MTM.IsZero() {
			batches = append(batches, mp.doubleEntry(v, v.MTM, PostingMTM))
		}
		prevMTM = v.MTM
	}
	return batches
}

// doubleEntry books a signed MTM movement:
//
//	amount > 0: Dr revaluation / Cr unrealized P&L
//	amount < 0: Dr unrealized P&L / Cr revaluation
func (mp *MTMPoster) doubleEntry(v blotter.ValuationSnapshot, amount decimal.Decimal, ptype PostingType) Batch {
	abs := amount.Abs()
	revalSide, pnlSide := Debit, Credit
	if amount.IsNegative() {
		revalSide, pnlSide = Credit, Debit
	}

	batchID := uuid.New()
	mk := func(account int32, drcr DrCr) Posting {
		return Posting{
			PostingID:   uuid.New(),
			BatchID:     batchID,
			PostingDate: v.AsOfDate,
			CustomerID:  v.CustomerID,
			Instrument:  v.Instrument,
			Ccy:         v.Ccy,
			AccountCode: account,
			DrCr:        drcr,
			Amount:      abs,
			PostingType: ptype,
		}
	}

	return Batch{
		BatchID: batchID,
		Postings: []Posting{
			mk(mp.chart.Revaluation, revalSide),
			mk(mp.chart.UnrealizedPnL, pnlSide),
		},
	}
}
