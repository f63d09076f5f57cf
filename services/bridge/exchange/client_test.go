package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/typedauth"
)

const testUser = "0xAbC0000000000000000000000000000000000dEf"

type recordedRequest struct {
	Path string
	Body map[string]any
}

func newTestServer(t *testing.T, handler func(path string, body map[string]any) (int, string)) (*Client, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		mu.Lock()
		seen = append(seen, recordedRequest{Path: r.URL.Path, Body: body})
		mu.Unlock()
		status, payload := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(server.Close)
	client := NewClient(Config{BaseURL: server.URL, RatePerSecond: 1000, Burst: 100})
	return client, &seen
}

func TestSpotBalanceAndWithdrawable(t *testing.T) {
	client, seen := newTestServer(t, func(path string, body map[string]any) (int, string) {
		switch body["type"] {
		case "spotClearinghouseState":
			return http.StatusOK, `{"balances":[{"coin":"HYPE","total":"3","hold":"0"},{"coin":"USDC","total":"19.6","hold":"0"}]}`
		case "clearinghouseState":
			return http.StatusOK, `{"marginSummary":{"accountValue":"12.5","totalNtlPos":"0","totalRawUsd":"12.5","totalMarginUsed":"0"},"withdrawable":"4.8"}`
		}
		return http.StatusBadRequest, `{"error":"unknown"}`
	})

	spot, err := client.SpotBalance(context.Background(), testUser, CollateralCoin)
	require.NoError(t, err)
	require.True(t, spot.Equal(decimal.RequireFromString("19.6")))

	withdrawable, err := client.Withdrawable(context.Background(), testUser)
	require.NoError(t, err)
	require.True(t, withdrawable.Equal(decimal.RequireFromString("4.8")))

	perp, err := client.PerpState(context.Background(), testUser)
	require.NoError(t, err)
	require.True(t, perp.MarginSummary.AccountValue.Equal(decimal.RequireFromString("12.5")))

	require.Len(t, *seen, 3)
	require.Equal(t, "/info", (*seen)[0].Path)
	require.Equal(t, "0xabc0000000000000000000000000000000000def", (*seen)[0].Body["user"])
}

func TestSpotBalanceMissingCoinIsZero(t *testing.T) {
	client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"balances":[]}`
	})
	spot, err := client.SpotBalance(context.Background(), testUser, CollateralCoin)
	require.NoError(t, err)
	require.True(t, spot.IsZero())
}

func TestInfoFailureIsGatewayUnavailable(t *testing.T) {
	client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusBadGateway, `upstream down`
	})
	_, err := client.Withdrawable(context.Background(), testUser)
	require.ErrorIs(t, err, bridgeerr.ErrGatewayUnavailable)
	require.Contains(t, err.Error(), "upstream down")
	require.True(t, bridgeerr.Transient(err))
}

func TestLedgerHistorySendsStartTime(t *testing.T) {
	since := time.UnixMilli(1_700_000_000_000)
	client, seen := newTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `[
			{"time":1699999999000,"hash":"0x1","delta":{"type":"deposit","usdc":"50"}},
			{"time":1700000001000,"hash":"0x2","delta":{"type":"deposit","usdc":"12.5"}},
			{"time":1700000002000,"hash":"0x3","delta":{"type":"deposit","usdc":"7.3"}},
			{"time":1700000003000,"hash":"0x4","delta":{"type":"accountClassTransfer","usdc":"bogus"}},
			{"time":1700000004000,"hash":"0x5","delta":{"type":"spotTransfer"}}
		]`
	})

	total, err := client.SumCollateralSince(context.Background(), testUser, since)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("19.8")), total.String())

	body := (*seen)[0].Body
	require.Equal(t, "userNonFundingLedgerUpdates", body["type"])
	require.EqualValues(t, 1_700_000_000_000, body["startTime"])
}

func TestSumCollateralDeltasAcceptsNumericDelta(t *testing.T) {
	rows := []LedgerUpdate{
		{Time: 10, Delta: LedgerDelta{USDC: json.RawMessage(`4.5`)}},
		{Time: 11, Delta: LedgerDelta{USDC: json.RawMessage(`null`)}},
	}
	require.True(t, SumCollateralDeltas(rows, time.UnixMilli(5)).Equal(decimal.RequireFromString("4.5")))
}

func TestMidsSkipsUnparsablePrices(t *testing.T) {
	client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"ETH":"3000.5","BTC":"65000","BAD":"n/a"}`
	})
	mids, err := client.Mids(context.Background())
	require.NoError(t, err)
	require.Len(t, mids, 2)
	require.Equal(t, "BTC", mids[0].Coin)
	require.Equal(t, "ETH", mids[1].Coin)
}

func signedWithdrawal(t *testing.T) (typedauth.Authorization, typedauth.Signature) {
	t.Helper()
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	auth, err := typedauth.BuildWithdraw(typedauth.WithdrawRequest{
		HyperliquidChain: "Mainnet",
		SignatureChainID: 42161,
		Destination:      testUser,
		Amount:           "10",
		Time:             1_700_000_000_123,
	})
	require.NoError(t, err)
	sig, err := typedauth.SignAndVerify(key, auth)
	require.NoError(t, err)
	return auth, sig
}

func TestSubmitWithdrawalEnvelope(t *testing.T) {
	auth, sig := signedWithdrawal(t)
	client, seen := newTestServer(t, func(path string, _ map[string]any) (int, string) {
		require.Equal(t, "/exchange", path)
		return http.StatusOK, `{"status":"ok","response":{"type":"default"}}`
	})

	resp, err := client.SubmitWithdrawal(context.Background(), auth, sig)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	body := (*seen)[0].Body
	action := body["action"].(map[string]any)
	require.Equal(t, "withdraw3", action["type"])
	require.Equal(t, "Mainnet", action["hyperliquidChain"])
	require.Equal(t, "0xa4b1", action["signatureChainId"])
	require.Equal(t, "10", action["amount"])
	require.Equal(t, "0xabc0000000000000000000000000000000000def", action["destination"])
	require.EqualValues(t, 1_700_000_000_123, action["time"])
	require.Equal(t, action["time"], body["nonce"])

	signature := body["signature"].(map[string]any)
	require.Equal(t, sig.RHex(), signature["r"])
	require.Equal(t, sig.SHex(), signature["s"])
	require.EqualValues(t, sig.V, signature["v"])
}

func TestSubmitWithdrawalRejected(t *testing.T) {
	auth, sig := signedWithdrawal(t)

	t.Run("http status", func(t *testing.T) {
		client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
			return http.StatusUnprocessableEntity, `{"error":"bad nonce"}`
		})
		_, err := client.SubmitWithdrawal(context.Background(), auth, sig)
		require.ErrorIs(t, err, bridgeerr.ErrExchangeRejected)
		require.Contains(t, err.Error(), "bad nonce")
		require.False(t, bridgeerr.Transient(err))
	})

	t.Run("in band error", func(t *testing.T) {
		client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
			return http.StatusOK, `{"status":"err","response":"Insufficient balance for withdrawal"}`
		})
		_, err := client.SubmitWithdrawal(context.Background(), auth, sig)
		require.ErrorIs(t, err, bridgeerr.ErrExchangeRejected)
		require.Contains(t, err.Error(), "Insufficient balance")
	})

	t.Run("undecodable body", func(t *testing.T) {
		client, _ := newTestServer(t, func(string, map[string]any) (int, string) {
			return http.StatusOK, `<html>maintenance</html>`
		})
		_, err := client.SubmitWithdrawal(context.Background(), auth, sig)
		require.ErrorIs(t, err, bridgeerr.ErrExchangeRejected)
		require.NotErrorIs(t, err, bridgeerr.ErrGatewayUnavailable)
		require.Contains(t, err.Error(), "maintenance")
	})
}

func TestObserverSeesEveryRequest(t *testing.T) {
	var outcomes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	client := NewClient(Config{
		BaseURL: server.URL,
		ObserveRequest: func(endpoint, outcome string, _ time.Duration) {
			outcomes = append(outcomes, endpoint+":"+outcome)
		},
	})
	_, err := client.Mids(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"/info:error"}, outcomes)
}
