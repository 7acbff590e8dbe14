// Package gl generates double-entry general ledger postings for trade
// settlement and MTM revaluation, and aggregates them into running balances.
package gl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingType represents the business purpose of a posting.
type PostingType int32

const (
	PostingPurchase PostingType = iota
	PostingSale
	PostingSalePnL
	PostingMTM
	PostingMTMReversal
)

func (pt PostingType) String() string {
	switch pt {
	case PostingPurchase:
		return "PURCHASE"
	case PostingSale:
		return "SALE"
	case PostingSalePnL:
		return "SALE_PNL"
	case PostingMTM:
		return "MTM"
	case PostingMTMReversal:
		return "MTM_REVERSAL"
	default:
		return fmt.Sprintf("PostingType(%d)", int32(pt))
	}
}

// DrCr is the debit/credit flag.
type DrCr int8

const (
	Debit DrCr = iota
	Credit
)

func (d DrCr) String() string {
	if d == Debit {
		return "DR"
	}
	return "CR"
}

// Posting is a single GL entry. Append-only, immutable once created.
// Trade postings carry the originating trade id as DealID; MTM postings
// leave it empty.
type Posting struct {
	PostingID   uuid.UUID
	BatchID     uuid.UUID
	Sequence    int64
	PostingDate time.Time
	DealID      string
	CustomerID  string
	Instrument  string
	Ccy         string
	AccountCode int32
	DrCr        DrCr
	Amount      decimal.Decimal // always >= 0
	PostingType PostingType
}

// Signed returns the amount with debit positive and credit negative.
func (p Posting) Signed() decimal.Decimal {
	if p.DrCr == Debit {
		return p.Amount
	}
	return p.Amount.Neg()
}

// Batch groups the postings emitted for one accounting event: one deal for
// trade postings, one (group, date) movement for MTM postings.
type Batch struct {
	BatchID  uuid.UUID
	Postings []Posting
}

// Validate ensures the batch is well-formed: non-empty, consistent batch id,
// non-negative amounts, and signed amounts summing to zero (double-entry law).
func (b *Batch) Validate() error {
	if len(b.Postings) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	net := decimal.Zero
	for _, p := range b.Postings {
		if p.Amount.IsNegative() {
			return fmt.Errorf("posting %s has negative amount %s", p.PostingID, p.Amount)
		}
		if p.BatchID != b.BatchID {
			return fmt.Errorf("posting %s has mismatched batch_id", p.PostingID)
		}
		net = net.Add(p.Signed())
	}

	if !net.IsZero() {
		return fmt.Errorf("batch %s does not balance: net %s", b.BatchID, net)
	}
	return nil
}
