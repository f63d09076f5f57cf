package bridgeerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPErrorUnwrapsKindAndCause(t *testing.T) {
	err := fmt.Errorf("submit: %w", &HTTPError{
		Kind:     ErrExchangeRejected,
		Endpoint: "/exchange",
		Status:   422,
		Body:     `{"status":"err","response":"Insufficient balance"}`,
	})
	require.ErrorIs(t, err, ErrExchangeRejected)
	require.NotErrorIs(t, err, ErrGatewayUnavailable)
	require.Contains(t, err.Error(), "status 422")
	require.Contains(t, err.Error(), "Insufficient balance")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, 422, httpErr.Status)
}

func TestHTTPErrorDefaultsToGatewayUnavailable(t *testing.T) {
	err := &HTTPError{Endpoint: "/info", Err: context.DeadlineExceeded}
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, Transient(err))
	require.False(t, Transient(ErrSignatureMismatch))
}

func TestReason(t *testing.T) {
	require.Equal(t, "", Reason(nil))
	require.Equal(t, "amount_too_small", Reason(fmt.Errorf("withdraw: %w", ErrAmountTooSmall)))
	require.Equal(t, "exchange_rejected", Reason(&HTTPError{Kind: ErrExchangeRejected}))
	require.Equal(t, "gateway_unavailable", Reason(&HTTPError{Err: context.Canceled}))
	require.Equal(t, "other", Reason(errors.New("boom")))
}
