package recon

import (
	"sort"
	"time"

	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

// AllocationControlRecord verifies that the pro-rata allocation of one group
// sums back to the source valuation for its snapshot date.
type AllocationControlRecord struct {
	Group          blotter.GroupKey
	SnapshotDate   time.Time
	AllocatedMTM   decimal.Decimal
	SourceMTM      decimal.Decimal
	ValuationKnown bool
	Difference     decimal.Decimal // allocated - source
	Break          bool
}

// AllocationControl aggregates allocated trades per (group, snapshot date).
// Groups whose valuation was missing report zero against zero: the data gap
// already shows up as ValuationKnown=false rather than a spurious break.
func (c *Checker) AllocationControl(allocated []blotter.AllocatedTrade) []AllocationControlRecord {
	type acc struct {
		sum   decimal.Decimal
		src   decimal.Decimal
		known bool
	}
	sums := make(map[blotter.GroupDate]*acc)
	for _, at := range allocated {
		k := blotter.GroupDate{Group: at.Group(), Date: at.SnapshotDate}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.sum = a.sum.Add(at.MTMAllocated)
		if at.ValuationKnown {
			a.src = at.Valuation
			a.known = true
		}
	}

	keys := make([]blotter.GroupDate, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group.Less(keys[j].Group)
		}
		return keys[i].Date.Before(keys[j].Date)
	})

	out := make([]AllocationControlRecord, 0, len(keys))
	for _, k := range keys {
		a := sums[k]
		rec := AllocationControlRecord{
			Group:          k.Group,
			SnapshotDate:   k.Date,
			AllocatedMTM:   a.sum,
			SourceMTM:      a.src,
			ValuationKnown: a.known,
		}
		rec.Difference = rec.AllocatedMTM.Sub(rec.SourceMTM)
		rec.Break = c.isBreak(rec.Difference)
		out = append(out, rec)
	}
	return out
}
