package blotter

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a securities trade.
type Side int8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// ParseSide converts a blotter side string ("BUY"/"SELL", any case) to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy, nil
	case "SELL", "sell", "Sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown trade side: %q", s)
	}
}

// GroupKey identifies one position: all derivations (FIFO matching, allocation,
// posting, controls) are independent per group.
type GroupKey struct {
	CustomerID string
	Instrument string
	Ccy        string
}

func (k GroupKey) String() string {
	return k.CustomerID + ":" + k.Instrument + ":" + k.Ccy
}

// Less orders group keys by (customer, instrument, ccy) for deterministic
// iteration over map-partitioned work.
func (k GroupKey) Less(o GroupKey) bool {
	if k.CustomerID != o.CustomerID {
		return k.CustomerID < o.CustomerID
	}
	if k.Instrument != o.Instrument {
		return k.Instrument < o.Instrument
	}
	return k.Ccy < o.Ccy
}

// Trade is one blotter row. Immutable once loaded.
type Trade struct {
	TradeID    string
	CustomerID string
	Instrument string
	Ccy        string
	TradeDate  time.Time
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
}

func (t Trade) Group() GroupKey {
	return GroupKey{CustomerID: t.CustomerID, Instrument: t.Instrument, Ccy: t.Ccy}
}

// Notional is quantity * price.
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// OpenTrade is a trade left with open inventory after FIFO matching.
type OpenTrade struct {
	Trade
	RemainingQuantity decimal.Decimal
	OpenFlag          bool
}

// OpenNotional is remaining quantity * trade price, the allocation weight.
func (ot OpenTrade) OpenNotional() decimal.Decimal {
	return ot.RemainingQuantity.Mul(ot.Price)
}

// AllocatedTrade is an open trade with its pro-rata share of the group's
// externally sourced valuation.
type AllocatedTrade struct {
	OpenTrade
	OpenNotional decimal.Decimal
	SnapshotDate time.Time
	// Valuation is the group-level MTM joined from the valuation feed.
	// ValuationKnown is false when no feed row matched; the allocation is
	// then zero, never an error.
	Valuation      decimal.Decimal
	ValuationKnown bool
	MTMAllocated   decimal.Decimal
}
