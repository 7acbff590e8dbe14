package recon_test

import (
	"testing"

	"SecSubledger/internal/alloc"
	"SecSubledger/internal/blotter"
	"SecSubledger/internal/gl"
	"SecSubledger/internal/lots"
	"SecSubledger/internal/recon"
	"SecSubledger/internal/testutil"

	"github.com/shopspring/decimal"
)

func newChecker() *recon.Checker {
	return recon.NewChecker(recon.DefaultTolerance)
}

func group() blotter.GroupKey {
	return blotter.GroupKey{CustomerID: "CUST1", Instrument: "US0000000001", Ccy: "USD"}
}

func snapshot(t *testing.T, date, qty string) blotter.PositionSnapshot {
	t.Helper()
	return blotter.PositionSnapshot{
		CustomerID: "CUST1",
		Instrument: "US0000000001",
		Ccy:        "USD",
		AsOfDate:   testutil.Date(t, date),
		Quantity:   testutil.Dec(t, qty),
	}
}

func valuationRow(t *testing.T, date, mtm string) blotter.ValuationSnapshot {
	t.Helper()
	return blotter.ValuationSnapshot{
		CustomerID: "CUST1",
		Instrument: "US0000000001",
		Ccy:        "USD",
		AsOfDate:   testutil.Date(t, date),
		MTM:        testutil.Dec(t, mtm),
	}
}

// --- Position control ---

func TestPositionControl_AgreementIsNotABreak(t *testing.T) {
	trades := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "100", "10"),
		testutil.Trade(t, "S1", "2024-01-02", blotter.SideSell, "40", "11"),
	}
	res := lots.MatchGroup(trades)

	derived := map[blotter.GroupKey]decimal.Decimal{group(): res.DerivedPosition()}
	records := newChecker().PositionControl(derived, nil, []blotter.PositionSnapshot{
		snapshot(t, "2024-01-31", "60"),
	}, nil)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if !r.Difference.IsZero() {
		t.Errorf("difference = %s, want 0", r.Difference)
	}
	if r.Break {
		t.Error("agreeing position flagged as break")
	}
}

func TestPositionControl_MissingSnapshotCountsAsZero(t *testing.T) {
	derived := map[blotter.GroupKey]decimal.Decimal{group(): testutil.Dec(t, "60")}

	records := newChecker().PositionControl(derived, nil, nil, nil)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if !r.SnapshotQuantity.IsZero() {
		t.Errorf("snapshot qty = %s, want 0", r.SnapshotQuantity)
	}
	if !r.Difference.Equal(testutil.Dec(t, "60")) {
		t.Errorf("difference = %s, want 60", r.Difference)
	}
	if !r.Break {
		t.Error("missing snapshot with open position should break")
	}
}

func TestPositionControl_SnapshotOnlyGroupAppears(t *testing.T) {
	records := newChecker().PositionControl(nil, nil, []blotter.PositionSnapshot{
		snapshot(t, "2024-01-31", "25"),
	}, nil)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if !records[0].DerivedQuantity.IsZero() {
		t.Errorf("derived qty = %s, want 0", records[0].DerivedQuantity)
	}
	if !records[0].Break {
		t.Error("snapshot-only group should break")
	}
}

func TestPositionControl_CarriesUnmatchedSellQty(t *testing.T) {
	derived := map[blotter.GroupKey]decimal.Decimal{group(): decimal.Zero}
	unmatched := map[blotter.GroupKey]decimal.Decimal{group(): testutil.Dec(t, "5")}

	records := newChecker().PositionControl(derived, unmatched, []blotter.PositionSnapshot{
		snapshot(t, "2024-01-31", "0"),
	}, nil)

	r := records[0]
	if !r.UnmatchedSellQty.Equal(testutil.Dec(t, "5")) {
		t.Errorf("unmatched sell qty = %s, want 5", r.UnmatchedSellQty)
	}
	// Difference is zero, so this is an audit trail, not a break.
	if r.Break {
		t.Error("zero-difference record flagged as break")
	}
}

func TestPositionControl_AsOfFiltersSnapshots(t *testing.T) {
	asOf := testutil.Date(t, "2024-01-31")
	derived := map[blotter.GroupKey]decimal.Decimal{group(): testutil.Dec(t, "10")}

	records := newChecker().PositionControl(derived, nil, []blotter.PositionSnapshot{
		snapshot(t, "2024-01-30", "99"),
		snapshot(t, "2024-01-31", "10"),
	}, &asOf)

	if got := records[0].SnapshotQuantity; !got.Equal(testutil.Dec(t, "10")) {
		t.Errorf("snapshot qty = %s, want 10 (as-of row only)", got)
	}
}

// --- Allocation control ---

func TestAllocationControl_SumsBackToSource(t *testing.T) {
	trades := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "10", "100"),
		testutil.Trade(t, "B2", "2024-01-02", blotter.SideBuy, "30", "100"),
	}
	res := lots.MatchGroup(trades)
	open := lots.OpenTrades(trades, res)
	allocated := alloc.Allocate(open, []blotter.ValuationSnapshot{
		valuationRow(t, "2024-01-31", "400"),
	})

	records := newChecker().AllocationControl(allocated)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Break {
		t.Errorf("allocation control broke: diff %s", records[0].Difference)
	}
	if !records[0].AllocatedMTM.Equal(testutil.Dec(t, "400")) {
		t.Errorf("allocated sum = %s, want 400", records[0].AllocatedMTM)
	}
}

func TestAllocationControl_MissingValuationReportsZeroAgainstZero(t *testing.T) {
	trades := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "10", "100"),
	}
	res := lots.MatchGroup(trades)
	open := lots.OpenTrades(trades, res)
	allocated := alloc.Allocate(open, nil)

	records := newChecker().AllocationControl(allocated)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.ValuationKnown {
		t.Error("valuation marked known despite missing feed")
	}
	if r.Break {
		t.Error("zero-against-zero record flagged as break")
	}
}

// --- Trade GL control ---

func TestTradeGLControl_BuyTiesToNotional(t *testing.T) {
	trades := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "100", "10"),
	}
	chart := gl.DefaultChart()
	postings := flatten(gl.NewTradePoster(chart, false).PostGroup(trades))

	buys, sells := newChecker().TradeGLControl(trades, postings, chart)

	if len(buys) != 1 || len(sells) != 0 {
		t.Fatalf("buys/sells = %d/%d, want 1/0", len(buys), len(sells))
	}
	b := buys[0]
	if !b.AssetDiff.IsZero() || !b.CashDiff.IsZero() {
		t.Errorf("buy diffs = %s / %s, want 0 / 0", b.AssetDiff, b.CashDiff)
	}
	if b.Break {
		t.Error("tied-out buy flagged as break")
	}
}

func TestTradeGLControl_SellBalanceCheckSignsPnL(t *testing.T) {
	chart := gl.DefaultChart()

	// Gain case: proceeds 1800, cost 1500, pnl +300 credited.
	gain := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "100", "15"),
		testutil.Trade(t, "S1", "2024-01-02", blotter.SideSell, "100", "18"),
	}
	_, sells := newChecker().TradeGLControl(gain, flatten(gl.NewTradePoster(chart, false).PostGroup(gain)), chart)
	if len(sells) != 1 {
		t.Fatalf("sells = %d, want 1", len(sells))
	}
	s := sells[0]
	if !s.GLRealizedPnL.Equal(testutil.Dec(t, "300")) {
		t.Errorf("signed pnl = %s, want 300", s.GLRealizedPnL)
	}
	if !s.BalanceCheck.IsZero() {
		t.Errorf("balance check = %s, want 0", s.BalanceCheck)
	}
	if s.Break {
		t.Error("balanced sale flagged as break")
	}

	// Loss case: the debit leg must subtract so the identity still holds.
	loss := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "100", "20"),
		testutil.Trade(t, "S1", "2024-01-02", blotter.SideSell, "100", "18"),
	}
	_, sells = newChecker().TradeGLControl(loss, flatten(gl.NewTradePoster(chart, false).PostGroup(loss)), chart)
	s = sells[0]
	if !s.GLRealizedPnL.Equal(testutil.Dec(t, "-200")) {
		t.Errorf("signed pnl = %s, want -200", s.GLRealizedPnL)
	}
	if !s.BalanceCheck.IsZero() {
		t.Errorf("balance check = %s, want 0", s.BalanceCheck)
	}
}

func TestTradeGLControl_UnpostedTradeBreaks(t *testing.T) {
	trades := []blotter.Trade{
		testutil.Trade(t, "B1", "2024-01-01", blotter.SideBuy, "100", "10"),
	}

	buys, _ := newChecker().TradeGLControl(trades, nil, gl.DefaultChart())

	if len(buys) != 1 {
		t.Fatalf("buys = %d, want 1", len(buys))
	}
	if !buys[0].Break {
		t.Error("trade with no postings did not break")
	}
}

// --- MTM GL control ---

func TestMTMGLControl_BookedLevelMatchesSource(t *testing.T) {
	chart := gl.DefaultChart()
	series := []blotter.ValuationSnapshot{
		valuationRow(t, "2024-01-01", "100"),
		valuationRow(t, "2024-01-02", "150"),
		valuationRow(t, "2024-01-03", "-30"),
	}

	postings := flatten(gl.NewMTMPoster(chart).PostSeries(series))
	balances := gl.RevaluationBalances(postings, chart.Revaluation)

	records := newChecker().MTMGLControl(series, balances)

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for _, r := range records {
		if r.Break {
			t.Errorf("date %s broke: gl %s vs source %s", r.Date.Format("2006-01-02"), r.GLBalance, r.SourceMTM)
		}
	}
}

func TestMTMGLControl_MissingGLRowsCountAsZero(t *testing.T) {
	series := []blotter.ValuationSnapshot{valuationRow(t, "2024-01-01", "100")}

	records := newChecker().MTMGLControl(series, nil)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if !r.GLBalance.IsZero() {
		t.Errorf("gl balance = %s, want 0", r.GLBalance)
	}
	if !r.Break {
		t.Error("unbooked valuation did not break")
	}
}

func TestPortfolioMTMControl_AggregatesPerDate(t *testing.T) {
	records := []recon.MTMControlRecord{
		{Group: group(), Date: testutil.Date(t, "2024-01-01"), SourceMTM: testutil.Dec(t, "100"), GLBalance: testutil.Dec(t, "100")},
		{Group: blotter.GroupKey{CustomerID: "CUST2", Instrument: "US0000000002", Ccy: "USD"},
			Date: testutil.Date(t, "2024-01-01"), SourceMTM: testutil.Dec(t, "50"), GLBalance: testutil.Dec(t, "40")},
	}

	out := newChecker().PortfolioMTMControl(records)

	if len(out) != 1 {
		t.Fatalf("portfolio records = %d, want 1", len(out))
	}
	p := out[0]
	if !p.SourceMTM.Equal(testutil.Dec(t, "150")) {
		t.Errorf("portfolio source = %s, want 150", p.SourceMTM)
	}
	if !p.Difference.Equal(testutil.Dec(t, "-10")) {
		t.Errorf("portfolio diff = %s, want -10", p.Difference)
	}
	if !p.Break {
		t.Error("portfolio-level mismatch did not break")
	}
}

func flatten(batches []gl.Batch) []gl.Posting {
	var postings []gl.Posting
	for _, b := range batches {
		postings = append(postings, b.Postings...)
	}
	return postings
}
