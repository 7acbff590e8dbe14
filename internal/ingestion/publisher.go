package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SecSubledger/internal/engine"
	"SecSubledger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// ConnectNATS dials NATS with unlimited reconnects and returns a JetStream
// handle alongside the connection.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// BreakEvent is one reconciliation break, published for downstream alerting.
// Subjects follow the pattern: subledger.breaks.{control}
type BreakEvent struct {
	Control    string `json:"control"`
	CustomerID string `json:"customer_id,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	Ccy        string `json:"ccy,omitempty"`
	TradeID    string `json:"trade_id,omitempty"`
	Date       string `json:"date,omitempty"`
	Source     string `json:"source"`
	Derived    string `json:"derived"`
	Difference string `json:"difference"`
}

// CollectBreaks flattens every breached control record of a run into break
// events.
func CollectBreaks(out *engine.Outputs) []BreakEvent {
	var events []BreakEvent

	for _, r := range out.PositionControls {
		if !r.Break {
			continue
		}
		events = append(events, BreakEvent{
			Control:    "position",
			CustomerID: r.Group.CustomerID,
			Instrument: r.Group.Instrument,
			Ccy:        r.Group.Ccy,
			Source:     r.SnapshotQuantity.String(),
			Derived:    r.DerivedQuantity.String(),
			Difference: r.Difference.String(),
		})
	}

	for _, r := range out.AllocationControls {
		if !r.Break {
			continue
		}
		events = append(events, BreakEvent{
			Control:    "allocation",
			CustomerID: r.Group.CustomerID,
			Instrument: r.Group.Instrument,
			Ccy:        r.Group.Ccy,
			Date:       fmtDate(r.SnapshotDate),
			Source:     r.SourceMTM.String(),
			Derived:    r.AllocatedMTM.String(),
			Difference: r.Difference.String(),
		})
	}

	for _, r := range out.BuyControls {
		if !r.Break {
			continue
		}
		events = append(events, BreakEvent{
			Control:    "trade_gl",
			CustomerID: r.Group.CustomerID,
			Instrument: r.Group.Instrument,
			Ccy:        r.Group.Ccy,
			TradeID:    r.TradeID,
			Date:       fmtDate(r.TradeDate),
			Source:     r.TradeNotional.String(),
			Derived:    r.GLAssetDebit.String(),
			Difference: r.AssetDiff.String(),
		})
	}
	for _, r := range out.SellControls {
		if !r.Break {
			continue
		}
		events = append(events, BreakEvent{
			Control:    "trade_gl",
			CustomerID: r.Group.CustomerID,
			Instrument: r.Group.Instrument,
			Ccy:        r.Group.Ccy,
			TradeID:    r.TradeID,
			Date:       fmtDate(r.TradeDate),
			Source:     r.TradeNotional.String(),
			Derived:    r.GLCashDebit.String(),
			Difference: r.BalanceCheck.String(),
		})
	}

	for _, r := range out.MTMControls {
		if !r.Break {
			continue
		}
		events = append(events, BreakEvent{
			Control:    "mtm_gl",
			CustomerID: r.Group.CustomerID,
			Instrument: r.Group.Instrument,
			Ccy:        r.Group.Ccy,
			Date:       fmtDate(r.Date),
			Source:     r.SourceMTM.String(),
			Derived:    r.GLBalance.String(),
			Difference: r.Difference.String(),
		})
	}

	return events
}

// BreakPublisher publishes break events to NATS JetStream. Publishing is
// best-effort: a failed publish is logged and counted, never fatal, because
// the breaks are also exported and persisted.
type BreakPublisher struct {
	js      jetstream.JetStream
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewBreakPublisher(js jetstream.JetStream, logger zerolog.Logger, metrics *observability.Metrics) *BreakPublisher {
	return &BreakPublisher{js: js, logger: logger, metrics: metrics}
}

// Publish sends each break to subledger.breaks.{control}.
func (bp *BreakPublisher) Publish(ctx context.Context, events []BreakEvent) {
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			bp.logger.Error().Err(err).Msg("marshal break event")
			bp.metrics.PublishErrors.Inc()
			continue
		}

		subject := fmt.Sprintf("subledger.breaks.%s", evt.Control)
		if _, err := bp.js.Publish(ctx, subject, data); err != nil {
			bp.logger.Warn().Err(err).Str("subject", subject).Msg("publish break event")
			bp.metrics.PublishErrors.Inc()
		}
	}
}

// EnsureBreakStream creates the break stream if it does not exist.
func EnsureBreakStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SUBLEDGER_BREAKS",
		Subjects:  []string{"subledger.breaks.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create break stream: %w", err)
	}
	return nil
}
