package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeKind classifies how a reconciliation ended.
type OutcomeKind int

const (
	// Unknown is the zero value; it is only returned alongside an error.
	Unknown OutcomeKind = iota
	// Credited means a polled balance grew by at least the minimum delta.
	Credited
	// LedgerConfirmed means balances lagged but the ledger history shows the
	// credit.
	LedgerConfirmed
	// TimedOut means neither balances nor history showed the credit in time.
	TimedOut
	// AmountTooSmall means the expected credit was not positive.
	AmountTooSmall
	// InsufficientSourceFunds means the source pre-check failed.
	InsufficientSourceFunds
)

func (k OutcomeKind) String() string {
	switch k {
	case Credited:
		return "credited"
	case LedgerConfirmed:
		return "ledger_confirmed"
	case TimedOut:
		return "timed_out"
	case AmountTooSmall:
		return "amount_too_small"
	case InsufficientSourceFunds:
		return "insufficient_source_funds"
	default:
		return "unknown"
	}
}

// Success reports whether the outcome confirms the transfer.
func (k OutcomeKind) Success() bool {
	return k == Credited || k == LedgerConfirmed
}

// Outcome is the single result of a reconciliation run.
type Outcome struct {
	Kind    OutcomeKind
	Delta   decimal.Decimal
	Ledger  LedgerKind
	Polls   int
	Elapsed time.Duration
}
