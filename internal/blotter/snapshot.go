package blotter

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is the independently sourced position quantity used as
// reconciliation ground truth for the FIFO-derived position.
type PositionSnapshot struct {
	CustomerID string
	Instrument string
	Ccy        string
	AsOfDate   time.Time
	Quantity   decimal.Decimal
}

func (p PositionSnapshot) Group() GroupKey {
	return GroupKey{CustomerID: p.CustomerID, Instrument: p.Instrument, Ccy: p.Ccy}
}

// ValuationSnapshot is a position-level mark-to-market figure from the front
// office feed. A single-date feed carries one row per group; the timeseries
// feed carries one row per (group, as-of date).
type ValuationSnapshot struct {
	CustomerID string
	Instrument string
	Ccy        string
	AsOfDate   time.Time
	MTM        decimal.Decimal
}

func (v ValuationSnapshot) Group() GroupKey {
	return GroupKey{CustomerID: v.CustomerID, Instrument: v.Instrument, Ccy: v.Ccy}
}

// GroupDate keys records that are per position per day.
type GroupDate struct {
	Group GroupKey
	Date  time.Time
}
