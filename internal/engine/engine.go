// Package engine runs the subledger batch: FIFO matching, valuation
// allocation, GL posting, reconciliation controls and the thin ledger, over a
// complete set of input records. Groups are independent, so the heavy stages
// fan out to a worker pool and the results are merged deterministically.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"SecSubledger/internal/alloc"
	"SecSubledger/internal/blotter"
	"SecSubledger/internal/gl"
	"SecSubledger/internal/lots"
	"SecSubledger/internal/observability"
	"SecSubledger/internal/recon"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Inputs is the complete record set for one run. The engine never reads
// anything else; collaborators own deserialization.
type Inputs struct {
	Trades     []blotter.Trade
	Positions  []blotter.PositionSnapshot
	Valuations []blotter.ValuationSnapshot // single-date feed, for allocation
	MTMSeries  []blotter.ValuationSnapshot // timeseries feed, for roll-forward

	// AsOfDate, when set, restricts trades to trade_date <= as-of and the
	// position/valuation feeds to rows at the as-of date.
	AsOfDate *time.Time
}

// Outputs is everything a run produces, ready for export, persistence and
// break publishing.
type Outputs struct {
	OpenTrades      []blotter.OpenTrade
	AllocatedTrades []blotter.AllocatedTrade
	Postings        []gl.Posting

	PositionControls     []recon.PositionControlRecord
	AllocationControls   []recon.AllocationControlRecord
	BuyControls          []recon.BuyControlRecord
	SellControls         []recon.SellControlRecord
	MTMControls          []recon.MTMControlRecord
	PortfolioMTMControls []recon.PortfolioMTMControlRecord

	LedgerBalances []gl.LedgerBalance
}

// Config carries the run parameters.
type Config struct {
	Chart             gl.Chart
	Tolerance         decimal.Decimal
	Workers           int // <= 0 means GOMAXPROCS
	ClampNegativeCost bool
}

type Engine struct {
	cfg     Config
	checker *recon.Checker
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = recon.DefaultTolerance
	}
	return &Engine{
		cfg:     cfg,
		checker: recon.NewChecker(cfg.Tolerance),
		logger:  logger,
		metrics: metrics,
	}
}

// groupTask is one unit of parallel work: every record of one group.
type groupTask struct {
	key    blotter.GroupKey
	trades []blotter.Trade
	series []blotter.ValuationSnapshot
}

// groupResult holds the per-group derivations before the deterministic merge.
type groupResult struct {
	key          blotter.GroupKey
	match        lots.MatchResult
	open         []blotter.OpenTrade
	tradeBatches []gl.Batch
	mtmBatches   []gl.Batch
}

// Run executes the full pipeline. It either completes deterministically or
// fails outright; data gaps and degenerate accounting states never error,
// they surface through control records.
func (e *Engine) Run(ctx context.Context, in Inputs) (*Outputs, error) {
	start := time.Now()

	trades, positions, valuations := e.applyAsOf(in)

	tasks := e.partition(trades, in.MTMSeries)
	results, err := e.fanOut(ctx, tasks)
	if err != nil {
		return nil, err
	}
	e.observeStage("match_and_post", start)

	out := &Outputs{}
	derived := make(map[blotter.GroupKey]decimal.Decimal, len(results))
	unmatched := make(map[blotter.GroupKey]decimal.Decimal, len(results))

	var sequence int64
	for _, res := range results {
		derived[res.key] = res.match.DerivedPosition()
		if res.match.UnmatchedSellQty.IsPositive() {
			unmatched[res.key] = res.match.UnmatchedSellQty
			e.metrics.UnmatchedSells.Inc()
			e.logger.Warn().
				Str("group", res.key.String()).
				Str("unmatched_sell_qty", res.match.UnmatchedSellQty.String()).
				Msg("sell quantity exceeded FIFO buy inventory")
		}

		out.OpenTrades = append(out.OpenTrades, res.open...)

		for _, batch := range append(res.tradeBatches, res.mtmBatches...) {
			if err := batch.Validate(); err != nil {
				return nil, fmt.Errorf("group %s: %w", res.key, err)
			}
			for _, p := range batch.Postings {
				sequence++
				p.Sequence = sequence
				out.Postings = append(out.Postings, p)
				e.metrics.PostingsGenerated.WithLabelValues(p.PostingType.String()).Inc()
			}
		}
	}
	e.metrics.GroupsProcessed.Add(float64(len(results)))
	e.metrics.TradesProcessed.Add(float64(len(trades)))

	allocStart := time.Now()
	out.AllocatedTrades = alloc.Allocate(out.OpenTrades, valuations)
	e.observeStage("allocate", allocStart)

	ctrlStart := time.Now()
	out.PositionControls = e.checker.PositionControl(derived, unmatched, positions, in.AsOfDate)
	out.AllocationControls = e.checker.AllocationControl(out.AllocatedTrades)
	out.BuyControls, out.SellControls = e.checker.TradeGLControl(trades, out.Postings, e.cfg.Chart)

	revalBalances := gl.RevaluationBalances(out.Postings, e.cfg.Chart.Revaluation)
	out.MTMControls = e.checker.MTMGLControl(in.MTMSeries, revalBalances)
	out.PortfolioMTMControls = e.checker.PortfolioMTMControl(out.MTMControls)
	e.observeStage("controls", ctrlStart)

	aggStart := time.Now()
	out.LedgerBalances = gl.DailyBalances(out.Postings)
	e.observeStage("aggregate", aggStart)

	e.countControls(out)

	e.logger.Info().
		Int("trades", len(trades)).
		Int("groups", len(results)).
		Int("open_trades", len(out.OpenTrades)).
		Int("postings", len(out.Postings)).
		Int("ledger_rows", len(out.LedgerBalances)).
		Dur("elapsed", time.Since(start)).
		Msg("subledger run complete")

	return out, nil
}

func (e *Engine) applyAsOf(in Inputs) ([]blotter.Trade, []blotter.PositionSnapshot, []blotter.ValuationSnapshot) {
	if in.AsOfDate == nil {
		return in.Trades, in.Positions, in.Valuations
	}
	asOf := *in.AsOfDate

	trades := make([]blotter.Trade, 0, len(in.Trades))
	for _, t := range in.Trades {
		if !t.TradeDate.After(asOf) {
			trades = append(trades, t)
		}
	}

	valuations := make([]blotter.ValuationSnapshot, 0, len(in.Valuations))
	for _, v := range in.Valuations {
		if v.AsOfDate.Equal(asOf) {
			valuations = append(valuations, v)
		}
	}

	// Positions are filtered inside the position control (it owns the join);
	// trades and valuations are cut here because every stage sees them.
	return trades, in.Positions, valuations
}

func (e *Engine) partition(trades []blotter.Trade, series []blotter.ValuationSnapshot) []groupTask {
	byGroup := make(map[blotter.GroupKey]*groupTask)
	task := func(g blotter.GroupKey) *groupTask {
		t, ok := byGroup[g]
		if !ok {
			t = &groupTask{key: g}
			byGroup[g] = t
		}
		return t
	}

	for _, tr := range trades {
		t := task(tr.Group())
		t.trades = append(t.trades, tr)
	}
	for _, v := range series {
		t := task(v.Group())
		t.series = append(t.series, v)
	}

	tasks := make([]groupTask, 0, len(byGroup))
	for _, t := range byGroup {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].key.Less(tasks[j].key) })
	return tasks
}

// fanOut processes each group on a worker and returns results ordered by
// group key. No state is shared across groups, so workers need no
// coordination beyond collecting results.
func (e *Engine) fanOut(ctx context.Context, tasks []groupTask) ([]groupResult, error) {
	taskCh := make(chan groupTask)
	results := make([]groupResult, 0, len(tasks))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		workers = e.cfg.Workers
	)
	if workers > len(tasks) && len(tasks) > 0 {
		workers = len(tasks)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tradePoster := gl.NewTradePoster(e.cfg.Chart, e.cfg.ClampNegativeCost)
			mtmPoster := gl.NewMTMPoster(e.cfg.Chart)

			for task := range taskCh {
				res := groupResult{key: task.key}
				if len(task.trades) > 0 {
					res.match = lots.MatchGroup(task.trades)
					res.open = lots.OpenTrades(task.trades, res.match)
					res.tradeBatches = tradePoster.PostGroup(task.trades)
				}
				if len(task.series) > 0 {
					res.mtmBatches = mtmPoster.PostSeries(task.series)
				}

				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	var sendErr error
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
		case taskCh <- t:
			continue
		}
		break
	}
	close(taskCh)
	wg.Wait()

	if sendErr != nil {
		return nil, sendErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].key.Less(results[j].key) })
	return results, nil
}

func (e *Engine) observeStage(stage string, start time.Time) {
	e.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (e *Engine) countControls(out *Outputs) {
	count := func(control string, total, breaks int) {
		e.metrics.ControlRecords.WithLabelValues(control).Add(float64(total))
		e.metrics.ControlBreaks.WithLabelValues(control).Add(float64(breaks))
	}

	n := 0
	for _, r := range out.PositionControls {
		if r.Break {
			n++
		}
	}
	count("position", len(out.PositionControls), n)

	n = 0
	for _, r := range out.AllocationControls {
		if r.Break {
			n++
		}
	}
	count("allocation", len(out.AllocationControls), n)

	n = 0
	for _, r := range out.BuyControls {
		if r.Break {
			n++
		}
	}
	for _, r := range out.SellControls {
		if r.Break {
			n++
		}
	}
	count("trade_gl", len(out.BuyControls)+len(out.SellControls), n)

	n = 0
	for _, r := range out.MTMControls {
		if r.Break {
			n++
		}
	}
	count("mtm_gl", len(out.MTMControls), n)
}
