package bridge

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"

	"hlbridge/services/bridge/bridgeerr"
)

// SendRequest describes a plain on-chain USDC transfer.
type SendRequest struct {
	Amount string
	Key    *ecdsa.PrivateKey
	To     common.Address
}

// Send transfers USDC to another address on chain and waits for the receipt.
// No exchange ledger is involved.
func (p *Processor) Send(ctx context.Context, req SendRequest) (TransferResult, error) {
	ctx, span := startSpan(ctx, "bridge.Send", attribute.String("amount", req.Amount))
	defer span.End()

	var res TransferResult
	if p.chain == nil {
		return res, p.fail(span, Send, ErrChainUnavailable)
	}
	if req.Key == nil {
		return res, p.fail(span, Send, fmt.Errorf("%w: missing", bridgeerr.ErrInvalidKey))
	}
	from := gethcrypto.PubkeyToAddress(req.Key.PublicKey)
	intent, err := NewIntent(Send, req.Amount, from, req.To, p.settings.ChainID)
	if err != nil {
		return res, p.fail(span, Send, err)
	}
	res.Intent = intent

	if res.Raw, res.Decimals, err = p.preflightTransfer(ctx, intent); err != nil {
		return res, p.fail(span, Send, err)
	}
	if err := p.submitTransfer(ctx, req.Key, intent, &res); err != nil {
		return res, p.fail(span, Send, err)
	}
	span.SetAttributes(attribute.String("tx_hash", res.TxHash.Hex()))
	p.record(Send, "confirmed")
	return res, nil
}
