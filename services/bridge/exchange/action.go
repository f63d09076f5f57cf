package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/typedauth"
)

// WithdrawAction is the action body the exchange re-hashes when verifying the
// signature. Field values must match the signed message byte for byte.
type WithdrawAction struct {
	Type             string `json:"type"`
	HyperliquidChain string `json:"hyperliquidChain"`
	SignatureChainID string `json:"signatureChainId"`
	Amount           string `json:"amount"`
	Time             uint64 `json:"time"`
	Destination      string `json:"destination"`
}

// SignatureJSON is the wire form of a signature.
type SignatureJSON struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// WithdrawEnvelope is the full request posted to the action endpoint.
type WithdrawEnvelope struct {
	Action    WithdrawAction `json:"action"`
	Nonce     uint64         `json:"nonce"`
	Signature SignatureJSON  `json:"signature"`
}

// ActionResponse is the exchange's in-band result.
type ActionResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// NewWithdrawEnvelope assembles the envelope from a signed authorization.
// The action time and the nonce are both the authorization nonce.
func NewWithdrawEnvelope(auth typedauth.Authorization, sig typedauth.Signature) WithdrawEnvelope {
	return WithdrawEnvelope{
		Action: WithdrawAction{
			Type:             "withdraw3",
			HyperliquidChain: auth.HyperliquidChain(),
			SignatureChainID: auth.SignatureChainIDHex(),
			Amount:           auth.Amount(),
			Time:             auth.Nonce(),
			Destination:      auth.Destination(),
		},
		Nonce: auth.Nonce(),
		Signature: SignatureJSON{
			R: sig.RHex(),
			S: sig.SHex(),
			V: sig.V,
		},
	}
}

// SubmitWithdrawal posts a signed withdrawal. Non-2xx responses and 2xx
// responses with status "err" both fail with ErrExchangeRejected.
func (c *Client) SubmitWithdrawal(ctx context.Context, auth typedauth.Authorization, sig typedauth.Signature) (ActionResponse, error) {
	envelope := NewWithdrawEnvelope(auth, sig)
	var raw json.RawMessage
	if err := c.post(ctx, actionPath, c.actionTimeout, bridgeerr.ErrExchangeRejected, envelope, &raw); err != nil {
		return ActionResponse{}, fmt.Errorf("exchange: submit withdrawal: %w", err)
	}
	var resp ActionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ActionResponse{}, fmt.Errorf("exchange: submit withdrawal: %w", &bridgeerr.HTTPError{
			Kind:     bridgeerr.ErrExchangeRejected,
			Endpoint: actionPath,
			Body:     string(raw),
			Err:      err,
		})
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return resp, fmt.Errorf("exchange: submit withdrawal: %w", &bridgeerr.HTTPError{
			Kind:     bridgeerr.ErrExchangeRejected,
			Endpoint: actionPath,
			Status:   200,
			Body:     string(raw),
		})
	}
	return resp, nil
}
