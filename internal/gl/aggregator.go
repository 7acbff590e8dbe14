package gl

import (
	"sort"
	"time"

	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

// LedgerBalance is one thin-ledger row: the signed daily change and running
// balance for an (account, ccy) over posting dates. Recomputed each run.
type LedgerBalance struct {
	Date        time.Time
	AccountCode int32
	Ccy         string
	DayChange   decimal.Decimal
	Balance     decimal.Decimal
}

// GroupDateBalance is a running signed balance per position per date, used by
// the MTM control to reconstruct the GL revaluation level.
type GroupDateBalance struct {
	Group     blotter.GroupKey
	Date      time.Time
	DayChange decimal.Decimal
	Balance   decimal.Decimal
}

type accountDay struct {
	account int32
	ccy     string
	date    time.Time
}

// DailyBalances aggregates ALL postings (trade and MTM) into the thin ledger:
// sign each posting (debit +, credit -), sum per (date, account, ccy), then
// cumulate per (account, ccy) in date order.
func DailyBalances(postings []Posting) []LedgerBalance {
	changes := make(map[accountDay]decimal.Decimal)
	for _, p := range postings {
		k := accountDay{account: p.AccountCode, ccy: p.Ccy, date: p.PostingDate}
		changes[k] = changes[k].Add(p.Signed())
	}

	keys := make([]accountDay, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		if keys[i].ccy != keys[j].ccy {
			return keys[i].ccy < keys[j].ccy
		}
		return keys[i].date.Before(keys[j].date)
	})

	out := make([]LedgerBalance, 0, len(keys))
	var (
		curAccount int32
		curCcy     string
		balance    decimal.Decimal
		first      = true
	)
	for _, k := range keys {
		if first || k.account != curAccount || k.ccy != curCcy {
			curAccount, curCcy = k.account, k.ccy
			balance = decimal.Zero
			first = false
		}
		balance = balance.Add(changes[k])
		out = append(out, LedgerBalance{
			Date:        k.date,
			AccountCode: k.account,
			Ccy:         k.ccy,
			DayChange:   changes[k],
			Balance:     balance,
		})
	}
	return out
}

// RevaluationBalances filters postings to the revaluation account and
// reconstructs the cumulative booked MTM level per (group, date). This must
// equal the source valuation at every date; the MTM control checks that.
func RevaluationBalances(postings []Posting, revalAccount int32) []GroupDateBalance {
	changes := make(map[blotter.GroupDate]decimal.Decimal)
	for _, p := range postings {
		if p.AccountCode != revalAccount {
			continue
		}
		k := blotter.GroupDate{
			Group: blotter.GroupKey{CustomerID: p.CustomerID, Instrument: p.Instrument, Ccy: p.Ccy},
			Date:  p.PostingDate,
		}
		changes[k] = changes[k].Add(p.Signed())
	}

	keys := make([]blotter.GroupDate, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group.Less(keys[j].Group)
		}
		return keys[i].Date.Before(keys[j].Date)
	})

	out := make([]GroupDateBalance, 0, len(keys))
	var (
		curGroup blotter.GroupKey
		balance  decimal.Decimal
		first    = true
	)
	for _, k := range keys {
		if first || k.Group != curGroup {
			curGroup = k.Group
			balance = decimal.Zero
			first = false
		}
		balance = balance.Add(changes[k])
		out = append(out, GroupDateBalance{
			Group:     k.Group,
			Date:      k.Date,
			DayChange: changes[k],
			Balance:   balance,
		})
	}
	return out
}
