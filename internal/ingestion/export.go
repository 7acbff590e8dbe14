package ingestion

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"SecSubledger/internal/engine"
)

// WriteOutputs exports every derived record set of a run as headed CSV files
// under dir. Files are recreated on each run; the subledger is a full
// recomputation, not an incremental store.
func WriteOutputs(dir string, out *engine.Outputs) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	writers := []struct {
		name  string
		write func(*csv.Writer) error
	}{
		{"open_trades.csv", func(w *csv.Writer) error { return writeOpenTrades(w, out) }},
		{"allocated_trades.csv", func(w *csv.Writer) error { return writeAllocatedTrades(w, out) }},
		{"gl_postings.csv", func(w *csv.Writer) error { return writePostings(w, out) }},
		{"ledger_balances.csv", func(w *csv.Writer) error { return writeLedgerBalances(w, out) }},
		{"ctrl_position.csv", func(w *csv.Writer) error { return writePositionControls(w, out) }},
		{"ctrl_allocation.csv", func(w *csv.Writer) error { return writeAllocationControls(w, out) }},
		{"ctrl_trade_buys.csv", func(w *csv.Writer) error { return writeBuyControls(w, out) }},
		{"ctrl_trade_sells.csv", func(w *csv.Writer) error { return writeSellControls(w, out) }},
		{"ctrl_mtm.csv", func(w *csv.Writer) error { return writeMTMControls(w, out) }},
		{"ctrl_portfolio_mtm.csv", func(w *csv.Writer) error { return writePortfolioControls(w, out) }},
	}

	for _, spec := range writers {
		if err := writeFile(filepath.Join(dir, spec.name), spec.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := write(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func writeOpenTrades(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"trade_id", "customer_id", "isin", "ccy", "trade_date", "side", "quantity", "remaining_quantity", "open_flag"}); err != nil {
		return err
	}
	for _, ot := range out.OpenTrades {
		if err := w.Write([]string{
			ot.TradeID, ot.CustomerID, ot.Instrument, ot.Ccy,
			fmtDate(ot.TradeDate), ot.Side.String(),
			ot.Quantity.String(), ot.RemainingQuantity.String(), "true",
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeAllocatedTrades(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"trade_id", "customer_id", "isin", "ccy", "snapshot_date", "remaining_quantity", "price", "open_notional", "fo_mtm", "mtm_allocated"}); err != nil {
		return err
	}
	for _, at := range out.AllocatedTrades {
		mtm := ""
		if at.ValuationKnown {
			mtm = at.Valuation.String()
		}
		if err := w.Write([]string{
			at.TradeID, at.CustomerID, at.Instrument, at.Ccy,
			fmtDate(at.SnapshotDate), at.RemainingQuantity.String(),
			at.Price.String(), at.OpenNotional.String(), mtm, at.MTMAllocated.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writePostings(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"sequence", "posting_date", "deal_id", "customer_id", "isin", "ccy", "account_code", "dr_cr", "amount", "posting_type"}); err != nil {
		return err
	}
	for _, p := range out.Postings {
		if err := w.Write([]string{
			fmt.Sprintf("%d", p.Sequence), fmtDate(p.PostingDate), p.DealID,
			p.CustomerID, p.Instrument, p.Ccy,
			fmt.Sprintf("%d", p.AccountCode), p.DrCr.String(),
			p.Amount.String(), p.PostingType.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeLedgerBalances(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"posting_date", "account_code", "ccy", "day_change", "balance"}); err != nil {
		return err
	}
	for _, b := range out.LedgerBalances {
		if err := w.Write([]string{
			fmtDate(b.Date), fmt.Sprintf("%d", b.AccountCode), b.Ccy,
			b.DayChange.String(), b.Balance.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writePositionControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"customer_id", "isin", "ccy", "fifo_position_qty", "position_quantity", "difference", "unmatched_sell_qty", "break"}); err != nil {
		return err
	}
	for _, r := range out.PositionControls {
		if err := w.Write([]string{
			r.Group.CustomerID, r.Group.Instrument, r.Group.Ccy,
			r.DerivedQuantity.String(), r.SnapshotQuantity.String(),
			r.Difference.String(), r.UnmatchedSellQty.String(),
			fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeAllocationControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"customer_id", "isin", "ccy", "snapshot_date", "allocated_mtm", "fo_mtm", "difference", "break"}); err != nil {
		return err
	}
	for _, r := range out.AllocationControls {
		if err := w.Write([]string{
			r.Group.CustomerID, r.Group.Instrument, r.Group.Ccy,
			fmtDate(r.SnapshotDate), r.AllocatedMTM.String(), r.SourceMTM.String(),
			r.Difference.String(), fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeBuyControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"trade_id", "customer_id", "isin", "ccy", "trade_date", "trade_notional", "gl_asset", "gl_cash", "diff_asset", "diff_cash", "break"}); err != nil {
		return err
	}
	for _, r := range out.BuyControls {
		if err := w.Write([]string{
			r.TradeID, r.Group.CustomerID, r.Group.Instrument, r.Group.Ccy,
			fmtDate(r.TradeDate), r.TradeNotional.String(),
			r.GLAssetDebit.String(), r.GLCashCredit.String(),
			r.AssetDiff.String(), r.CashDiff.String(), fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeSellControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"trade_id", "customer_id", "isin", "ccy", "trade_date", "trade_notional", "gl_cash", "gl_asset", "gl_pnl", "diff_cash", "balance_check", "break"}); err != nil {
		return err
	}
	for _, r := range out.SellControls {
		if err := w.Write([]string{
			r.TradeID, r.Group.CustomerID, r.Group.Instrument, r.Group.Ccy,
			fmtDate(r.TradeDate), r.TradeNotional.String(),
			r.GLCashDebit.String(), r.GLAssetCredit.String(), r.GLRealizedPnL.String(),
			r.CashDiff.String(), r.BalanceCheck.String(), fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeMTMControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"customer_id", "isin", "ccy", "posting_date", "fo_mtm", "gl_mtm_balance", "day_change", "difference", "break"}); err != nil {
		return err
	}
	for _, r := range out.MTMControls {
		if err := w.Write([]string{
			r.Group.CustomerID, r.Group.Instrument, r.Group.Ccy,
			fmtDate(r.Date), r.SourceMTM.String(), r.GLBalance.String(),
			r.DayChange.String(), r.Difference.String(), fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writePortfolioControls(w *csv.Writer, out *engine.Outputs) error {
	if err := w.Write([]string{"posting_date", "sum_fo_mtm", "gl_reval_balance", "difference", "break"}); err != nil {
		return err
	}
	for _, r := range out.PortfolioMTMControls {
		if err := w.Write([]string{
			fmtDate(r.Date), r.SourceMTM.String(), r.GLBalance.String(),
			r.Difference.String(), fmt.Sprintf("%t", r.Break),
		}); err != nil {
			return err
		}
	}
	return nil
}
