package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StateKind names a per-user state query of the info endpoint.
type StateKind string

const (
	// ClearinghouseState is the perpetual margin account.
	ClearinghouseState StateKind = "clearinghouseState"
	// SpotClearinghouseState is the spot account.
	SpotClearinghouseState StateKind = "spotClearinghouseState"
)

// CollateralCoin is the spot symbol of the collateral asset.
const CollateralCoin = "USDC"

type userQuery struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	StartTime *int64 `json:"startTime,omitempty"`
}

// MarginSummary mirrors the perp account margin summary.
type MarginSummary struct {
	AccountValue    decimal.Decimal `json:"accountValue"`
	TotalNtlPos     decimal.Decimal `json:"totalNtlPos"`
	TotalRawUSD     decimal.Decimal `json:"totalRawUsd"`
	TotalMarginUsed decimal.Decimal `json:"totalMarginUsed"`
}

// PerpState is the subset of clearinghouseState the bridge reads.
type PerpState struct {
	MarginSummary MarginSummary   `json:"marginSummary"`
	Withdrawable  decimal.Decimal `json:"withdrawable"`
}

// SpotBalance is one row of the spot account.
type SpotBalance struct {
	Coin  string          `json:"coin"`
	Total decimal.Decimal `json:"total"`
	Hold  decimal.Decimal `json:"hold"`
}

// SpotState is the subset of spotClearinghouseState the bridge reads.
type SpotState struct {
	Balances []SpotBalance `json:"balances"`
}

// LedgerUpdate is one non-funding ledger row. Delta fields vary by update
// type, so the collateral amount is kept raw and parsed on demand.
type LedgerUpdate struct {
	Time  int64       `json:"time"`
	Hash  string      `json:"hash"`
	Delta LedgerDelta `json:"delta"`
}

// LedgerDelta carries the update type and its collateral delta.
type LedgerDelta struct {
	Type string          `json:"type"`
	USDC json.RawMessage `json:"usdc"`
}

// QueryState returns the raw JSON state of kind for address.
func (c *Client) QueryState(ctx context.Context, kind StateKind, address string) (json.RawMessage, error) {
	user, err := normaliseUser(address)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.info(ctx, userQuery{Type: string(kind), User: user}, &raw); err != nil {
		return nil, fmt.Errorf("exchange: query %s: %w", kind, err)
	}
	return raw, nil
}

// PerpState returns the perp margin account of address.
func (c *Client) PerpState(ctx context.Context, address string) (PerpState, error) {
	raw, err := c.QueryState(ctx, ClearinghouseState, address)
	if err != nil {
		return PerpState{}, err
	}
	var state PerpState
	if err := json.Unmarshal(raw, &state); err != nil {
		return PerpState{}, fmt.Errorf("exchange: decode %s: %w", ClearinghouseState, err)
	}
	return state, nil
}

// Withdrawable returns the perp balance that may be withdrawn right now.
func (c *Client) Withdrawable(ctx context.Context, address string) (decimal.Decimal, error) {
	state, err := c.PerpState(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	return state.Withdrawable, nil
}

// SpotState returns every spot balance of address.
func (c *Client) SpotState(ctx context.Context, address string) (SpotState, error) {
	raw, err := c.QueryState(ctx, SpotClearinghouseState, address)
	if err != nil {
		return SpotState{}, err
	}
	var state SpotState
	if err := json.Unmarshal(raw, &state); err != nil {
		return SpotState{}, fmt.Errorf("exchange: decode %s: %w", SpotClearinghouseState, err)
	}
	return state, nil
}

// SpotBalance returns the spot total of coin, or zero when the account holds
// none.
func (c *Client) SpotBalance(ctx context.Context, address, coin string) (decimal.Decimal, error) {
	state, err := c.SpotState(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	for _, bal := range state.Balances {
		if strings.EqualFold(bal.Coin, coin) {
			return bal.Total, nil
		}
	}
	return decimal.Zero, nil
}

// LedgerHistory returns the non-funding ledger updates of address since the
// given instant.
func (c *Client) LedgerHistory(ctx context.Context, address string, since time.Time) ([]LedgerUpdate, error) {
	user, err := normaliseUser(address)
	if err != nil {
		return nil, err
	}
	start := since.UnixMilli()
	var rows []LedgerUpdate
	query := userQuery{Type: "userNonFundingLedgerUpdates", User: user, StartTime: &start}
	if err := c.info(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("exchange: ledger history: %w", err)
	}
	return rows, nil
}

// SumCollateralDeltas adds the collateral delta of every row at or after
// since. Rows without a parsable delta are skipped.
func SumCollateralDeltas(rows []LedgerUpdate, since time.Time) decimal.Decimal {
	cutoff := since.UnixMilli()
	total := decimal.Zero
	for _, row := range rows {
		if row.Time != 0 && row.Time < cutoff {
			continue
		}
		delta, ok := parseRawDecimal(row.Delta.USDC)
		if !ok {
			continue
		}
		total = total.Add(delta)
	}
	return total
}

// SumCollateralSince fetches the ledger history of address and sums its
// collateral deltas since the given instant.
func (c *Client) SumCollateralSince(ctx context.Context, address string, since time.Time) (decimal.Decimal, error) {
	rows, err := c.LedgerHistory(ctx, address, since)
	if err != nil {
		return decimal.Zero, err
	}
	return SumCollateralDeltas(rows, since), nil
}

// Mid is one entry of the mid price sample.
type Mid struct {
	Coin  string
	Price decimal.Decimal
}

// Mids returns all mid prices sorted by coin. Unparsable prices are dropped.
func (c *Client) Mids(ctx context.Context) ([]Mid, error) {
	var raw map[string]string
	if err := c.info(ctx, map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, fmt.Errorf("exchange: all mids: %w", err)
	}
	out := make([]Mid, 0, len(raw))
	for coin, px := range raw {
		price, err := decimal.NewFromString(strings.TrimSpace(px))
		if err != nil {
			continue
		}
		out = append(out, Mid{Coin: coin, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coin < out[j].Coin })
	return out, nil
}

func parseRawDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return decimal.Zero, false
	}
	trimmed = strings.Trim(trimmed, `"`)
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

func normaliseUser(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", fmt.Errorf("exchange: user address required")
	}
	return strings.ToLower(trimmed), nil
}
