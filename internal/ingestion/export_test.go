package ingestion_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"SecSubledger/internal/blotter"
	"SecSubledger/internal/engine"
	"SecSubledger/internal/gl"
	"SecSubledger/internal/ingestion"
	"SecSubledger/internal/observability"
	"SecSubledger/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func runOutputs(t *testing.T) *engine.Outputs {
	t.Helper()
	eng := engine.New(engine.Config{Chart: gl.DefaultChart(), Workers: 1},
		zerolog.Nop(), observability.NewMetricsWith(prometheus.NewRegistry()))

	out, err := eng.Run(context.Background(), engine.Inputs{
		Trades: []blotter.Trade{
			testutil.Trade(t, "T1", "2024-01-01", blotter.SideBuy, "100", "10"),
			testutil.Trade(t, "T2", "2024-01-02", blotter.SideSell, "40", "12"),
		},
		MTMSeries: []blotter.ValuationSnapshot{
			{CustomerID: "CUST1", Instrument: "US0000000001", Ccy: "USD",
				AsOfDate: testutil.Date(t, "2024-01-31"), MTM: testutil.Dec(t, "650")},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out
}

func TestWriteOutputs_CreatesAllFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := ingestion.WriteOutputs(dir, runOutputs(t)); err != nil {
		t.Fatalf("write outputs: %v", err)
	}

	files := []string{
		"open_trades.csv", "allocated_trades.csv", "gl_postings.csv",
		"ledger_balances.csv", "ctrl_position.csv", "ctrl_allocation.csv",
		"ctrl_trade_buys.csv", "ctrl_trade_sells.csv", "ctrl_mtm.csv",
		"ctrl_portfolio_mtm.csv",
	}
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing output file %s: %v", name, err)
		}
	}
}

func TestWriteOutputs_PostingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := runOutputs(t)
	if err := ingestion.WriteOutputs(dir, out); err != nil {
		t.Fatalf("write outputs: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "gl_postings.csv"))
	if err != nil {
		t.Fatalf("open postings: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read postings: %v", err)
	}
	if got, want := len(rows), len(out.Postings)+1; got != want {
		t.Fatalf("posting rows = %d, want %d (header + postings)", got, want)
	}
	if rows[0][0] != "sequence" {
		t.Errorf("first header column = %s, want sequence", rows[0][0])
	}
	if rows[1][0] != "1" {
		t.Errorf("first posting sequence = %s, want 1", rows[1][0])
	}
}
