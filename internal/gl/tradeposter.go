package gl

import (
	"SecSubledger/internal/blotter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradePoster generates purchase/sale postings for one group at a time,
// maintaining a running position quantity and cost basis (weighted-average
// cost). Within a group the trade order is load-bearing; the poster applies
// the (trade date, trade id) total order itself.
type TradePoster struct {
	chart Chart

	// clampNegativeCost floors the running cost basis at zero after a sale.
	// The default (false) preserves the source behavior where the degenerate
	// fallback can drive cost basis negative after an oversell.
	clampNegativeCost bool
}

func NewTradePoster(chart Chart, clampNegativeCost bool) *TradePoster {
	return &TradePoster{chart: chart, clampNegativeCost: clampNegativeCost}
}

// PostGroup emits one balanced batch per trade:
//
//	BUY:  Dr securities asset / Cr cash, at cost (PURCHASE)
//	SELL: Dr cash (proceeds) / Cr securities asset (avg cost of sold units),
//	      plus a realized P&L leg when pnl != 0 (CR gain, DR loss)
//
// Selling against a non-positive position falls back to the sell's own price
// as average cost; the approximation is silent (no error) per the degenerate
// accounting rules.
func (tp *TradePoster) PostGroup(trades []blotter.Trade) []Batch {
	sorted := blotter.SortTrades(trades)

	quantity := decimal.Zero
	costBasis := decimal.Zero

	batches := make([]Batch, 0, len(sorted))
	for _, t := range sorted {
		notional := t.Notional()

		switch t.Side {
		case blotter.SideBuy:
			quantity = quantity.Add(t.Quantity)
			costBasis = costBasis.Add(notional)

			batches = append(batches, tp.newBatch(t,
				leg{tp.chart.SecurityAsset, Debit, notional, PostingPurchase},
				leg{tp.chart.Cash, Credit, notional, PostingPurchase},
			))

		case blotter.SideSell:
			avgCost := t.Price // degenerate fallback: no open position to value against
			if quantity.IsPositive() {
				avgCost = costBasis.Div(quantity)
			}
			costOfSold := avgCost.Mul(t.Quantity)
			proceeds := notional
			pnl := proceeds.Sub(costOfSold)

			quantity = quantity.Sub(t.Quantity)
			costBasis = costBasis.Sub(costOfSold)
			if tp.clampNegativeCost && costBasis.IsNegative() {
				costBasis = decimal.Zero
			}

			legs := []leg{
				{tp.chart.Cash, Debit, proceeds, PostingSale},
				{tp.chart.SecurityAsset, Credit, costOfSold, PostingSale},
			}
			if !pnl.IsZero() {
				side := Credit
				if pnl.IsNegative() {
					side = Debit
				}
				legs = append(legs, leg{tp.chart.RealizedPnL, side, pnl.Abs(), PostingSalePnL})
			}
			batches = append(batches, tp.newBatch(t, legs...))
		}
	}
	return batches
}

type leg struct {
	account int32
	drcr    DrCr
	amount  decimal.Decimal
	ptype   PostingType
}

func (tp *TradePoster) newBatch(t blotter.Trade, legs ...leg) Batch {
	batchID := uuid.New()
	b := Batch{BatchID: batchID, Postings: make([]Posting, 0, len(legs))}
	for _, l := range legs {
		b.Postings = append(b.Postings, Posting{
			PostingID:   uuid.New(),
			BatchID:     batchID,
			PostingDate: t.TradeDate,
			DealID:      t.TradeID,
			CustomerID:  t.CustomerID,
			Instrument:  t.Instrument,
			Ccy:         t.Ccy,
			AccountCode: l.account,
			DrCr:        l.drcr,
			Amount:      l.amount,
			PostingType: l.ptype,
		})
	}
	return b
}
