package recon

import (
	"sort"
	"time"

	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

// PositionControlRecord compares the FIFO-derived open position of one group
// against the position snapshot feed. A missing snapshot counts as zero.
// UnmatchedSellQty carries oversold quantity the matcher could not consume,
// so an oversell leaves an audit trail even when the difference is zero.
type PositionControlRecord struct {
	Group            blotter.GroupKey
	DerivedQuantity  decimal.Decimal
	SnapshotQuantity decimal.Decimal
	Difference       decimal.Decimal // derived - snapshot
	UnmatchedSellQty decimal.Decimal
	Break            bool
}

// PositionControl outer-joins derived positions with the snapshot feed on
// group key. asOf, when set, restricts snapshots to that date.
func (c *Checker) PositionControl(
	derived map[blotter.GroupKey]decimal.Decimal,
	unmatched map[blotter.GroupKey]decimal.Decimal,
	snapshots []blotter.PositionSnapshot,
	asOf *time.Time,
) []PositionControlRecord {
	snapQty := make(map[blotter.GroupKey]decimal.Decimal, len(snapshots))
	for _, s := range snapshots {
		if asOf != nil && !s.AsOfDate.Equal(*asOf) {
			continue
		}
		snapQty[s.Group()] = s.Quantity
	}

	groups := make(map[blotter.GroupKey]struct{}, len(derived)+len(snapQty))
	for g := range derived {
		groups[g] = struct{}{}
	}
	for g := range snapQty {
		groups[g] = struct{}{}
	}

	keys := make([]blotter.GroupKey, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]PositionControlRecord, 0, len(keys))
	for _, g := range keys {
		rec := PositionControlRecord{
			Group:            g,
			DerivedQuantity:  derived[g],
			SnapshotQuantity: snapQty[g],
			UnmatchedSellQty: unmatched[g],
		}
		rec.Difference = rec.DerivedQuantity.Sub(rec.SnapshotQuantity)
		rec.Break = c.isBreak(rec.Difference)
		out = append(out, rec)
	}
	return out
}
