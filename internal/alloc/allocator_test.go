package alloc_test

import (
	"testing"

	"SecSubledger/internal/alloc"
	"SecSubledger/internal/blotter"
	"SecSubledger/internal/testutil"
)

func openTrade(t *testing.T, id, qty, price string) blotter.OpenTrade {
	t.Helper()
	return blotter.OpenTrade{
		Trade:             testutil.Trade(t, id, "2024-01-01", blotter.SideBuy, qty, price),
		RemainingQuantity: testutil.Dec(t, qty),
		OpenFlag:          true,
	}
}

func valuation(t *testing.T, date, mtm string) blotter.ValuationSnapshot {
	t.Helper()
	return blotter.ValuationSnapshot{
		CustomerID: "CUST1",
		Instrument: "US0000000001",
		Ccy:        "USD",
		AsOfDate:   testutil.Date(t, date),
		MTM:        testutil.Dec(t, mtm),
	}
}

func TestAllocate_ProRataByOpenNotional(t *testing.T) {
	open := []blotter.OpenTrade{
		openTrade(t, "B1", "10", "100"), // notional 1000
		openTrade(t, "B2", "30", "100"), // notional 3000
	}
	valuations := []blotter.ValuationSnapshot{valuation(t, "2024-01-31", "400")}

	out := alloc.Allocate(open, valuations)

	if len(out) != 2 {
		t.Fatalf("allocated trades = %d, want 2", len(out))
	}
	if got := out[0].MTMAllocated; !got.Equal(testutil.Dec(t, "100")) {
		t.Errorf("B1 allocation = %s, want 100", got)
	}
	if got := out[1].MTMAllocated; !got.Equal(testutil.Dec(t, "300")) {
		t.Errorf("B2 allocation = %s, want 300", got)
	}
	if !out[0].ValuationKnown {
		t.Error("valuation not marked known")
	}
	if !out[0].SnapshotDate.Equal(testutil.Date(t, "2024-01-31")) {
		t.Errorf("snapshot date = %s, want 2024-01-31", out[0].SnapshotDate)
	}
}

func TestAllocate_SumsBackToSource(t *testing.T) {
	open := []blotter.OpenTrade{
		openTrade(t, "B1", "10", "100"),
		openTrade(t, "B2", "15", "100"),
		openTrade(t, "B3", "25", "100"),
	}
	valuations := []blotter.ValuationSnapshot{valuation(t, "2024-01-31", "1000")}

	out := alloc.Allocate(open, valuations)

	sum := testutil.Dec(t, "0")
	for _, at := range out {
		sum = sum.Add(at.MTMAllocated)
	}
	if !sum.Equal(testutil.Dec(t, "1000")) {
		t.Errorf("allocations sum to %s, want 1000", sum)
	}
}

func TestAllocate_ZeroTotalNotionalAllocatesZero(t *testing.T) {
	open := []blotter.OpenTrade{
		openTrade(t, "B1", "10", "0"),
		openTrade(t, "B2", "20", "0"),
	}
	valuations := []blotter.ValuationSnapshot{valuation(t, "2024-01-31", "500")}

	out := alloc.Allocate(open, valuations)

	for _, at := range out {
		if !at.MTMAllocated.IsZero() {
			t.Errorf("%s allocation = %s, want 0 for zero-notional group", at.TradeID, at.MTMAllocated)
		}
		if !at.ValuationKnown {
			t.Errorf("%s should still carry the known valuation", at.TradeID)
		}
	}
}

func TestAllocate_MissingValuationAllocatesZero(t *testing.T) {
	open := []blotter.OpenTrade{openTrade(t, "B1", "10", "100")}

	out := alloc.Allocate(open, nil)

	if len(out) != 1 {
		t.Fatalf("allocated trades = %d, want 1", len(out))
	}
	if !out[0].MTMAllocated.IsZero() {
		t.Errorf("allocation = %s, want 0 when valuation missing", out[0].MTMAllocated)
	}
	if out[0].ValuationKnown {
		t.Error("valuation marked known despite missing feed row")
	}
}

func TestAllocate_ReallocatingOwnOutputIsStable(t *testing.T) {
	// Notionals 1:2 against 100 force non-terminating division residue.
	open := []blotter.OpenTrade{
		openTrade(t, "B1", "1", "1"),
		openTrade(t, "B2", "2", "1"),
	}
	first := alloc.Allocate(open, []blotter.ValuationSnapshot{valuation(t, "2024-01-31", "100")})

	// Feed the summed allocations back as the group valuation, open
	// notionals unchanged.
	sum := testutil.Dec(t, "0")
	for _, at := range first {
		sum = sum.Add(at.MTMAllocated)
	}
	second := alloc.Allocate(open, []blotter.ValuationSnapshot{
		{
			CustomerID: "CUST1",
			Instrument: "US0000000001",
			Ccy:        "USD",
			AsOfDate:   testutil.Date(t, "2024-01-31"),
			MTM:        sum,
		},
	})

	tolerance := testutil.Dec(t, "0.000000001")
	for i := range first {
		diff := second[i].MTMAllocated.Sub(first[i].MTMAllocated).Abs()
		if diff.GreaterThan(tolerance) {
			t.Errorf("%s reallocation drifted by %s: %s vs %s",
				first[i].TradeID, diff, first[i].MTMAllocated, second[i].MTMAllocated)
		}
	}
}

func TestAllocate_DuplicateFeedRowLastWins(t *testing.T) {
	open := []blotter.OpenTrade{openTrade(t, "B1", "10", "100")}
	valuations := []blotter.ValuationSnapshot{
		valuation(t, "2024-01-31", "100"),
		valuation(t, "2024-01-31", "250"),
	}

	out := alloc.Allocate(open, valuations)

	if got := out[0].MTMAllocated; !got.Equal(testutil.Dec(t, "250")) {
		t.Errorf("allocation = %s, want 250 (last feed row wins)", got)
	}
}
