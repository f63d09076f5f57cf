package bridge

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"hlbridge/observability/logging"
	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/exchange"
	"hlbridge/services/bridge/reconcile"
	"hlbridge/services/bridge/typedauth"
)

// WithdrawRequest describes an exchange to chain withdrawal. A zero User or
// Destination defaults to the signer's address.
type WithdrawRequest struct {
	Amount      string
	Key         *ecdsa.PrivateKey
	User        common.Address
	Destination common.Address
	NoWait      bool
}

// WithdrawResult reports what was signed, what the exchange answered and,
// when the on-chain credit was awaited, the reconciliation outcome.
type WithdrawResult struct {
	Intent        Intent
	Authorization typedauth.Authorization
	Signature     typedauth.Signature
	Response      exchange.ActionResponse
	Expected      decimal.Decimal
	Waited        bool
	Outcome       reconcile.Outcome
}

// Withdraw validates the request against the exchange account, signs and
// submits a withdraw3 action, and waits for the net amount to reach the
// destination on chain. The on-chain wait is skipped when NoWait is set or no
// chain gateway is configured.
func (p *Processor) Withdraw(ctx context.Context, req WithdrawRequest) (WithdrawResult, error) {
	ctx, span := startSpan(ctx, "bridge.Withdraw", attribute.String("amount", req.Amount))
	defer span.End()

	var res WithdrawResult
	if p.exchange == nil {
		return res, p.fail(span, Withdraw, fmt.Errorf("bridge: exchange client required"))
	}
	if req.Key == nil {
		return res, p.fail(span, Withdraw, fmt.Errorf("%w: missing", bridgeerr.ErrInvalidKey))
	}
	signer := gethcrypto.PubkeyToAddress(req.Key.PublicKey)
	user := req.User
	if user == (common.Address{}) {
		user = signer
	}
	if err := CheckSigner(signer, user); err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	dest := req.Destination
	if dest == (common.Address{}) {
		dest = signer
	}

	intent, err := NewIntent(Withdraw, req.Amount, signer, dest, p.settings.ChainID)
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	res.Intent = intent
	if err := p.settings.Policy.CheckMinimum(intent.Amount()); err != nil {
		res.Outcome = rejectedOutcome(err)
		return res, p.fail(span, Withdraw, err)
	}
	fee, err := p.fees.WithdrawFee(ctx)
	if err != nil {
		return res, p.fail(span, Withdraw, fmt.Errorf("bridge: withdraw fee: %w", err))
	}
	expected, err := ExpectedCredit(intent.Amount(), fee)
	if err != nil {
		res.Outcome = rejectedOutcome(err)
		return res, p.fail(span, Withdraw, err)
	}
	res.Expected = expected

	withdrawable, err := p.exchange.Withdrawable(ctx, user.Hex())
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	p.logger.Info("withdraw: preflight",
		slog.String("address", user.Hex()),
		slog.String("destination", dest.Hex()),
		slog.String("amount", intent.AmountHuman()),
		slog.String("withdrawable", withdrawable.String()),
		slog.String("fee", fee.String()))
	if err := p.settings.Policy.CheckWithdrawable(intent.Amount(), withdrawable); err != nil {
		res.Outcome = rejectedOutcome(err)
		return res, p.fail(span, Withdraw, err)
	}

	var run *reconcile.Run
	if !req.NoWait && p.chain != nil {
		rec, err := p.reconciler(dest, []reconcile.Observer{p.onChainObserver(dest)}, nil, p.now(), expected, p.settings.WithdrawTimeout)
		if err != nil {
			return res, p.fail(span, Withdraw, err)
		}
		if run, err = rec.Begin(ctx); err != nil {
			return res, p.fail(span, Withdraw, err)
		}
	}

	auth, err := typedauth.BuildWithdraw(typedauth.WithdrawRequest{
		HyperliquidChain: p.settings.Network,
		SignatureChainID: p.settings.SignatureChainID,
		Destination:      dest.Hex(),
		Amount:           intent.AmountHuman(),
		Time:             uint64(p.now().UnixMilli()),
	})
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	res.Authorization = auth
	sig, err := typedauth.SignAndVerify(req.Key, auth)
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	res.Signature = sig
	span.SetAttributes(attribute.Int64("nonce", int64(auth.Nonce())))

	p.logger.Info("withdraw: submitting",
		slog.String("destination", auth.Destination()),
		slog.String("amount", auth.Amount()),
		slog.String("network", auth.HyperliquidChain()),
		slog.String("signature_chain_id", auth.SignatureChainIDHex()),
		slog.Uint64("nonce", auth.Nonce()),
		slog.String("r", logging.Truncate(sig.RHex(), 10)),
		slog.String("s", logging.Truncate(sig.SHex(), 10)),
		slog.Int("v", int(sig.V)))
	resp, err := p.exchange.SubmitWithdrawal(ctx, auth, sig)
	res.Response = resp
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	p.logger.Info("withdraw: accepted", slog.String("status", resp.Status), slog.String("response", string(resp.Response)))

	if req.NoWait {
		p.record(Withdraw, "submitted")
		return res, nil
	}
	if run == nil {
		p.logger.Warn("withdraw: no chain RPC configured; skipping on-chain credit wait")
		p.record(Withdraw, "submitted")
		return res, nil
	}

	outcome, err := run.Wait(ctx)
	res.Waited = true
	res.Outcome = outcome
	p.record(Withdraw, outcome.Kind.String())
	if err != nil {
		return res, p.fail(span, Withdraw, err)
	}
	return res, nil
}
