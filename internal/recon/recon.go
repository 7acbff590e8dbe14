// Package recon builds the reconciliation controls: each control compares a
// value derived by the engine against an independently sourced feed and
// reports the difference. A nonzero difference (beyond tolerance) is a break,
// surfaced as a record, never as an error.
package recon

import (
	"github.com/shopspring/decimal"
)

// DefaultTolerance absorbs decimal division residue from pro-rata allocation;
// anything larger is a genuine break.
var DefaultTolerance = decimal.New(1, -9) // 1e-9

// Checker evaluates derived-vs-source differences against an absolute
// tolerance.
type Checker struct {
	tolerance decimal.Decimal
}

func NewChecker(tolerance decimal.Decimal) *Checker {
	return &Checker{tolerance: tolerance}
}

func (c *Checker) isBreak(diff decimal.Decimal) bool {
	return diff.Abs().GreaterThan(c.tolerance)
}
