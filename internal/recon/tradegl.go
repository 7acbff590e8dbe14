package recon

import (
	"time"

	"SecSubledger/internal/blotter"
	"SecSubledger/internal/gl"

	"github.com/shopspring/decimal"
)

// BuyControlRecord verifies a purchase: the trade notional must equal both
// the securities-asset debit and the cash credit posted under the deal id.
type BuyControlRecord struct {
	TradeID       string
	Group         blotter.GroupKey
	TradeDate     time.Time
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TradeNotional decimal.Decimal
	GLAssetDebit  decimal.Decimal
	GLCashCredit  decimal.Decimal
	AssetDiff     decimal.Decimal // gl asset - notional
	CashDiff      decimal.Decimal // gl cash - notional
	Break         bool
}

// SellControlRecord verifies a sale: the cash debit must equal the trade
// notional, and the postings must balance: cash debit = asset credit +
// realized P&L signed so gains add and losses subtract.
type SellControlRecord struct {
	TradeID       string
	Group         blotter.GroupKey
	TradeDate     time.Time
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TradeNotional decimal.Decimal
	GLCashDebit   decimal.Decimal
	GLAssetCredit decimal.Decimal
	GLRealizedPnL decimal.Decimal // signed: credit (gain) +, debit (loss) -
	CashDiff      decimal.Decimal // gl cash - notional
	BalanceCheck  decimal.Decimal // cash - (asset + pnl), must be 0
	Break         bool
}

// TradeGLControl reconciles every trade against the postings booked under its
// deal id. Trades with no postings at all report zeros and break.
func (c *Checker) TradeGLControl(trades []blotter.Trade, postings []gl.Posting, chart gl.Chart) ([]BuyControlRecord, []SellControlRecord) {
	byDeal := make(map[string][]gl.Posting)
	for _, p := range postings {
		if p.DealID == "" {
			continue
		}
		byDeal[p.DealID] = append(byDeal[p.DealID], p)
	}

	var buys []BuyControlRecord
	var sells []SellControlRecord

	for _, t := range blotter.SortTrades(trades) {
		notional := t.Notional()
		deal := byDeal[t.TradeID]

		switch t.Side {
		case blotter.SideBuy:
			rec := BuyControlRecord{
				TradeID:       t.TradeID,
				Group:         t.Group(),
				TradeDate:     t.TradeDate,
				Quantity:      t.Quantity,
				Price:         t.Price,
				TradeNotional: notional,
			}
			for _, p := range deal {
				if p.PostingType != gl.PostingPurchase {
					continue
				}
				if p.AccountCode == chart.SecurityAsset && p.DrCr == gl.Debit {
					rec.GLAssetDebit = rec.GLAssetDebit.Add(p.Amount)
				}
				if p.AccountCode == chart.Cash && p.DrCr == gl.Credit {
					rec.GLCashCredit = rec.GLCashCredit.Add(p.Amount)
				}
			}
			rec.AssetDiff = rec.GLAssetDebit.Sub(notional)
			rec.CashDiff = rec.GLCashCredit.Sub(notional)
			rec.Break = c.isBreak(rec.AssetDiff) || c.isBreak(rec.CashDiff)
			buys = append(buys, rec)

		case blotter.SideSell:
			rec := SellControlRecord{
				TradeID:       t.TradeID,
				Group:         t.Group(),
				TradeDate:     t.TradeDate,
				Quantity:      t.Quantity,
				Price:         t.Price,
				TradeNotional: notional,
			}
			for _, p := range deal {
				switch p.PostingType {
				case gl.PostingSale:
					if p.AccountCode == chart.Cash && p.DrCr == gl.Debit {
						rec.GLCashDebit = rec.GLCashDebit.Add(p.Amount)
					}
					if p.AccountCode == chart.SecurityAsset && p.DrCr == gl.Credit {
						rec.GLAssetCredit = rec.GLAssetCredit.Add(p.Amount)
					}
				case gl.PostingSalePnL:
					if p.AccountCode == chart.RealizedPnL {
						if p.DrCr == gl.Credit {
							rec.GLRealizedPnL = rec.GLRealizedPnL.Add(p.Amount)
						} else {
							rec.GLRealizedPnL = rec.GLRealizedPnL.Sub(p.Amount)
						}
					}
				}
			}
			rec.CashDiff = rec.GLCashDebit.Sub(notional)
			rec.BalanceCheck = rec.GLCashDebit.Sub(rec.GLAssetCredit.Add(rec.GLRealizedPnL))
			rec.Break = c.isBreak(rec.CashDiff) || c.isBreak(rec.BalanceCheck)
			sells = append(sells, rec)
		}
	}
	return buys, sells
}
