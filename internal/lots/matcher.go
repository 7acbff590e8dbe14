// Package lots derives open trade inventory by consuming buy lots with sell
// trades in strict FIFO order within one (customer, instrument, ccy) group.
package lots

import (
	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

// buyLot is one open buy in the FIFO queue, scoped to a single MatchGroup call.
type buyLot struct {
	tradeID   string
	remaining decimal.Decimal
}

// MatchResult is the outcome of FIFO matching for one group.
type MatchResult struct {
	// Remaining holds the open quantity per trade id. Sells always end at
	// zero; buys end at their unconsumed quantity.
	Remaining map[string]decimal.Decimal
	// UnmatchedSellQty is sell quantity that found no buy inventory to
	// consume. Matching does not reject oversells; callers surface this
	// through the position control instead.
	UnmatchedSellQty decimal.Decimal
}

// MatchGroup runs FIFO matching over all trades of one group, in any input
// order. Trades are ordered by (trade date, trade id); that total order is the
// deterministic tie-break. Buys seed the queue first, then sells consume from
// the oldest open buy.
func MatchGroup(trades []blotter.Trade) MatchResult {
	sorted := blotter.SortTrades(trades)

	res := MatchResult{
		Remaining:        make(map[string]decimal.Decimal, len(sorted)),
		UnmatchedSellQty: decimal.Zero,
	}

	queue := make([]buyLot, 0, len(sorted))
	for _, t := range sorted {
		if t.Side == blotter.SideBuy {
			queue = append(queue, buyLot{tradeID: t.TradeID, remaining: t.Quantity})
			res.Remaining[t.TradeID] = t.Quantity
		}
	}

	head := 0
	for _, t := range sorted {
		if t.Side != blotter.SideSell {
			continue
		}

		qtyToMatch := t.Quantity
		for qtyToMatch.IsPositive() && head < len(queue) {
			lot := &queue[head]
			used := decimal.Min(lot.remaining, qtyToMatch)
			lot.remaining = lot.remaining.Sub(used)
			qtyToMatch = qtyToMatch.Sub(used)
			res.Remaining[lot.tradeID] = res.Remaining[lot.tradeID].Sub(used)
			if lot.remaining.IsZero() {
				head++
			}
		}

		if qtyToMatch.IsPositive() {
			res.UnmatchedSellQty = res.UnmatchedSellQty.Add(qtyToMatch)
		}

		// sells never carry open inventory
		res.Remaining[t.TradeID] = decimal.Zero
	}

	return res
}

// OpenTrades filters trades down to those left with remaining quantity > 0
// and annotates them with the open flag.
func OpenTrades(trades []blotter.Trade, res MatchResult) []blotter.OpenTrade {
	open := make([]blotter.OpenTrade, 0, len(trades))
	for _, t := range blotter.SortTrades(trades) {
		rem, ok := res.Remaining[t.TradeID]
		if !ok || !rem.IsPositive() {
			continue
		}
		open = append(open, blotter.OpenTrade{
			Trade:             t,
			RemainingQuantity: rem,
			OpenFlag:          true,
		})
	}
	return open
}

// DerivedPosition is the FIFO-derived open position: the sum of remaining
// quantities over the group.
func (r MatchResult) DerivedPosition() decimal.Decimal {
	total := decimal.Zero
	for _, rem := range r.Remaining {
		total = total.Add(rem)
	}
	return total
}
