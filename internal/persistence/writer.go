// Package persistence writes the derived subledger record sets to Postgres.
// Each run fully recomputes its outputs, so posting writes are idempotent on
// posting_id and balance/control writes replace by run.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"SecSubledger/internal/engine"
	"SecSubledger/internal/gl"
	"SecSubledger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubledgerWriter persists postings, ledger balances and control breaks using
// multi-row INSERT batches.
type SubledgerWriter struct {
	db        *sql.DB
	batchSize int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewSubledgerWriter(db *sql.DB, batchSize int, logger zerolog.Logger, metrics *observability.Metrics) *SubledgerWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &SubledgerWriter{db: db, batchSize: batchSize, logger: logger, metrics: metrics}
}

// WriteRun persists one run's postings, ledger balances and break rows under
// the given run id.
func (w *SubledgerWriter) WriteRun(ctx context.Context, runID uuid.UUID, out *engine.Outputs) error {
	if err := w.WritePostings(ctx, runID, out.Postings); err != nil {
		return fmt.Errorf("write postings: %w", err)
	}
	if err := w.WriteLedgerBalances(ctx, runID, out.LedgerBalances); err != nil {
		return fmt.Errorf("write ledger balances: %w", err)
	}
	return nil
}

// WritePostings inserts GL postings in batches. Re-running the same batch is a
// no-op thanks to the posting_id conflict clause.
func (w *SubledgerWriter) WritePostings(ctx context.Context, runID uuid.UUID, postings []gl.Posting) error {
	const cols = 13
	for start := 0; start < len(postings); start += w.batchSize {
		end := start + w.batchSize
		if end > len(postings) {
			end = len(postings)
		}
		chunk := postings[start:end]

		query := `INSERT INTO subledger.gl_postings
			(posting_id, batch_id, run_id, sequence, posting_date, deal_id, customer_id, isin, ccy, account_code, dr_cr, amount, posting_type)
			VALUES `

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*cols)
		for i, p := range chunk {
			base := i * cols
			ph := make([]string, cols)
			for j := range ph {
				ph[j] = fmt.Sprintf("$%d", base+j+1)
			}
			values = append(values, "("+strings.Join(ph, ", ")+")")
			args = append(args,
				p.PostingID, p.BatchID, runID, p.Sequence, p.PostingDate,
				p.DealID, p.CustomerID, p.Instrument, p.Ccy,
				p.AccountCode, p.DrCr.String(), p.Amount.String(), p.PostingType.String(),
			)
		}

		query += strings.Join(values, ", ")
		query += " ON CONFLICT (posting_id) DO NOTHING"

		if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		w.metrics.PersistRows.WithLabelValues("gl_postings").Add(float64(len(chunk)))
	}

	w.logger.Info().Int("rows", len(postings)).Msg("persisted gl postings")
	return nil
}

// WriteLedgerBalances replaces the ledger balance rows of this run.
func (w *SubledgerWriter) WriteLedgerBalances(ctx context.Context, runID uuid.UUID, balances []gl.LedgerBalance) error {
	const cols = 6
	for start := 0; start < len(balances); start += w.batchSize {
		end := start + w.batchSize
		if end > len(balances) {
			end = len(balances)
		}
		chunk := balances[start:end]

		query := `INSERT INTO subledger.ledger_balances
			(run_id, posting_date, account_code, ccy, day_change, balance)
			VALUES `

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*cols)
		for i, b := range chunk {
			base := i * cols
			values = append(values, fmt.Sprintf(
				"($%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6,
			))
			args = append(args,
				runID, b.Date, b.AccountCode, b.Ccy,
				b.DayChange.String(), b.Balance.String(),
			)
		}

		query += strings.Join(values, ", ")
		query += ` ON CONFLICT (run_id, posting_date, account_code, ccy)
			DO UPDATE SET day_change = EXCLUDED.day_change, balance = EXCLUDED.balance`

		if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		w.metrics.PersistRows.WithLabelValues("ledger_balances").Add(float64(len(chunk)))
	}

	w.logger.Info().Int("rows", len(balances)).Msg("persisted ledger balances")
	return nil
}

// BreakRow is one persisted reconciliation break.
type BreakRow struct {
	Control    string
	CustomerID string
	Instrument string
	Ccy        string
	TradeID    string
	Date       sql.NullTime
	Source     string
	Derived    string
	Difference string
}

// WriteBreaks appends this run's control breaks.
func (w *SubledgerWriter) WriteBreaks(ctx context.Context, runID uuid.UUID, breaks []BreakRow) error {
	const cols = 10
	for start := 0; start < len(breaks); start += w.batchSize {
		end := start + w.batchSize
		if end > len(breaks) {
			end = len(breaks)
		}
		chunk := breaks[start:end]

		query := `INSERT INTO subledger.control_breaks
			(run_id, control, customer_id, isin, ccy, trade_id, as_of_date, source_value, derived_value, difference)
			VALUES `

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*cols)
		for i, b := range chunk {
			base := i * cols
			ph := make([]string, cols)
			for j := range ph {
				ph[j] = fmt.Sprintf("$%d", base+j+1)
			}
			values = append(values, "("+strings.Join(ph, ", ")+")")
			args = append(args,
				runID, b.Control, b.CustomerID, b.Instrument, b.Ccy,
				b.TradeID, b.Date, b.Source, b.Derived, b.Difference,
			)
		}

		query += strings.Join(values, ", ")

		if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		w.metrics.PersistRows.WithLabelValues("control_breaks").Add(float64(len(chunk)))
	}

	w.logger.Info().Int("rows", len(breaks)).Msg("persisted control breaks")
	return nil
}
