package blotter

import "sort"

// SortTrades returns a copy ordered by (trade date, trade id) ascending.
// This total order is the deterministic tie-break for FIFO matching and for
// the path-dependent average-cost fold; every consumer must use it.
func SortTrades(trades []Trade) []Trade {
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TradeDate.Equal(sorted[j].TradeDate) {
			return sorted[i].TradeDate.Before(sorted[j].TradeDate)
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})
	return sorted
}
