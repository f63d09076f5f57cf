// Package bridgeerr holds the error taxonomy shared by the transfer and
// reconciliation packages. Callers match kinds with errors.Is.
package bridgeerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAmount reports a non-numeric or non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountTooSmall reports an amount below the exchange minimum or one that
	// would be fully consumed by the withdrawal fee.
	ErrAmountTooSmall = errors.New("amount too small")
	// ErrInsufficientSourceFunds reports a failed source balance pre-check.
	ErrInsufficientSourceFunds = errors.New("insufficient source funds")
	// ErrInvalidKey reports a missing or malformed private key.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrSignerMismatch reports that the signing key does not belong to the
	// configured exchange user.
	ErrSignerMismatch = errors.New("signer does not match exchange user")
	// ErrSignatureMismatch reports that the address recovered from a fresh
	// signature differs from the signer. This is a schema bug, never transient.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrExchangeRejected reports a non-2xx or in-band error from the exchange
	// action endpoint.
	ErrExchangeRejected = errors.New("exchange rejected request")
	// ErrTransactionReverted reports a mined transaction with failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrConfirmationTimeout reports a transaction that was not mined in time.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrTimedOut reports that a credit was not observed within the polling
	// budget. The transfer itself may still have succeeded.
	ErrTimedOut = errors.New("timed out waiting for credit")
	// ErrGatewayUnavailable reports a transport or HTTP failure talking to the
	// exchange or the chain RPC.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// HTTPError carries the diagnostic context of a failed exchange call. It
// unwraps to its Kind so errors.Is works against the sentinels above.
type HTTPError struct {
	Kind     error
	Endpoint string
	Status   int
	Body     string
	Err      error
}

// Error renders the endpoint, status and response body.
func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	kind := e.Kind
	if kind == nil {
		kind = ErrGatewayUnavailable
	}
	b.WriteString(kind.Error())
	if e.Endpoint != "" {
		fmt.Fprintf(&b, ": %s", e.Endpoint)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		fmt.Fprintf(&b, "\nbody: %s", body)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying transport error.
func (e *HTTPError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	} else {
		out = append(out, ErrGatewayUnavailable)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Transient reports whether err is a failure the polling loop may retry on
// its next tick.
func Transient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrAmountTooSmall, "amount_too_small"},
	{ErrInsufficientSourceFunds, "insufficient_source_funds"},
	{ErrInvalidKey, "invalid_key"},
	{ErrSignerMismatch, "signer_mismatch"},
	{ErrSignatureMismatch, "signature_mismatch"},
	{ErrExchangeRejected, "exchange_rejected"},
	{ErrTransactionReverted, "transaction_reverted"},
	{ErrConfirmationTimeout, "confirmation_timeout"},
	{ErrTimedOut, "timed_out"},
	{ErrGatewayUnavailable, "gateway_unavailable"},
}

// Reason maps err to a short metric label. Errors outside the taxonomy
// report "other".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
