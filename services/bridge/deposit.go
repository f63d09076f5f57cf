package bridge

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"hlbridge/services/bridge/amount"
	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/exchange"
	"hlbridge/services/bridge/reconcile"
	"hlbridge/services/bridge/wallet"
)

// DepositRequest describes a chain to exchange deposit. A zero User defaults
// to the sender, which is the account the exchange credits.
type DepositRequest struct {
	Amount string
	Key    *ecdsa.PrivateKey
	User   common.Address
	NoWait bool
}

// TransferResult reports a confirmed on-chain transfer.
type TransferResult struct {
	Intent   Intent
	Raw      *big.Int
	Decimals uint8
	TxHash   common.Hash
	Receipt  *gethtypes.Receipt
}

// DepositResult extends TransferResult with the exchange-side outcome.
type DepositResult struct {
	TransferResult
	Waited  bool
	Outcome reconcile.Outcome
}

// Deposit sends USDC to the exchange bridge contract, waits for the receipt
// and then for the exchange to credit either the spot or the perp account.
// When neither balance moves within the budget the ledger history since the
// submission decides.
func (p *Processor) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	ctx, span := startSpan(ctx, "bridge.Deposit", attribute.String("amount", req.Amount))
	defer span.End()

	var res DepositResult
	if p.chain == nil {
		return res, p.fail(span, Deposit, ErrChainUnavailable)
	}
	if !req.NoWait && p.exchange == nil {
		return res, p.fail(span, Deposit, fmt.Errorf("bridge: exchange client required"))
	}
	if req.Key == nil {
		return res, p.fail(span, Deposit, fmt.Errorf("%w: missing", bridgeerr.ErrInvalidKey))
	}
	from := gethcrypto.PubkeyToAddress(req.Key.PublicKey)
	user := req.User
	if user == (common.Address{}) {
		user = from
	}
	intent, err := NewIntent(Deposit, req.Amount, from, p.settings.Bridge, p.settings.ChainID)
	if err != nil {
		return res, p.fail(span, Deposit, err)
	}
	res.Intent = intent
	if err := p.settings.Policy.CheckMinimum(intent.Amount()); err != nil {
		res.Outcome = rejectedOutcome(err)
		return res, p.fail(span, Deposit, err)
	}

	raw, decimals, err := p.preflightTransfer(ctx, intent)
	if err != nil {
		res.Outcome = rejectedOutcome(err)
		return res, p.fail(span, Deposit, err)
	}
	res.Raw, res.Decimals = raw, decimals

	var run *reconcile.Run
	if !req.NoWait {
		observers := []reconcile.Observer{
			reconcile.ObserverFunc{Kind: reconcile.ExchangeSpot, Fn: func(ctx context.Context) (decimal.Decimal, error) {
				return p.exchange.SpotBalance(ctx, user.Hex(), exchange.CollateralCoin)
			}},
			reconcile.ObserverFunc{Kind: reconcile.ExchangePerp, Fn: func(ctx context.Context) (decimal.Decimal, error) {
				return p.exchange.Withdrawable(ctx, user.Hex())
			}},
		}
		history := reconcile.HistoryFunc(func(ctx context.Context, since time.Time) (decimal.Decimal, error) {
			return p.exchange.SumCollateralSince(ctx, user.Hex(), since)
		})
		since := p.now().Add(-fallbackSkew)
		rec, err := p.reconciler(user, observers, history, since, intent.Amount(), p.settings.DepositTimeout)
		if err != nil {
			return res, p.fail(span, Deposit, err)
		}
		if run, err = rec.Begin(ctx); err != nil {
			return res, p.fail(span, Deposit, err)
		}
	}

	if err := p.submitTransfer(ctx, req.Key, intent, &res.TransferResult); err != nil {
		return res, p.fail(span, Deposit, err)
	}
	span.SetAttributes(attribute.String("tx_hash", res.TxHash.Hex()))

	if run == nil {
		p.record(Deposit, "submitted")
		return res, nil
	}
	// The credit budget runs from the mined receipt.
	run.Restart()
	outcome, err := run.Wait(ctx)
	res.Waited = true
	res.Outcome = outcome
	p.record(Deposit, outcome.Kind.String())
	if err != nil {
		return res, p.fail(span, Deposit, err)
	}
	return res, nil
}

// preflightTransfer checks the chain id, the gas balance and the token balance
// of the sender and returns the raw amount to transfer.
func (p *Processor) preflightTransfer(ctx context.Context, intent Intent) (*big.Int, uint8, error) {
	p.checkChainID(ctx)
	from := intent.Source()
	native, err := p.chain.NativeBalance(ctx, from)
	if err != nil {
		return nil, 0, err
	}
	if err := p.settings.Policy.CheckGas(from, native); err != nil {
		return nil, 0, err
	}
	balance, decimals, err := p.chain.ReadBalance(ctx, p.settings.USDC, from)
	if err != nil {
		return nil, 0, err
	}
	raw, err := amount.ToFixedPoint(intent.AmountHuman(), decimals)
	if err != nil {
		return nil, 0, err
	}
	p.logger.Info("transfer: preflight",
		slog.String("address", from.Hex()),
		slog.String("destination", intent.Destination().Hex()),
		slog.String("amount", intent.AmountHuman()),
		slog.String("raw", raw.String()),
		slog.String("balance", amount.FormatFixedPoint(balance, decimals)))
	if err := p.settings.Policy.CheckOnChain(from, raw, balance, decimals); err != nil {
		return nil, 0, err
	}
	return raw, decimals, nil
}

// submitTransfer sends the token transfer and waits for a successful receipt.
func (p *Processor) submitTransfer(ctx context.Context, key *ecdsa.PrivateKey, intent Intent, res *TransferResult) error {
	hash, err := p.chain.SubmitTransfer(ctx, p.settings.USDC, intent.Destination(), res.Raw, key)
	if err != nil {
		return err
	}
	res.TxHash = hash
	p.logger.Info("transfer: submitted", slog.String("tx_hash", hash.Hex()))
	receipt, err := p.chain.AwaitConfirmation(ctx, hash, p.settings.ReceiptTimeout)
	res.Receipt = receipt
	if err != nil {
		return err
	}
	p.logger.Info("transfer: confirmed",
		slog.String("tx_hash", hash.Hex()),
		slog.Any("block", receipt.BlockNumber),
		slog.Uint64("gas_used", receipt.GasUsed))
	if !wallet.MatchTransfer(receipt, p.settings.USDC, intent.Destination(), res.Raw) {
		p.logger.Warn("transfer: receipt has no matching Transfer event",
			slog.String("tx_hash", hash.Hex()),
			slog.String("token", p.settings.USDC.Hex()),
			slog.String("to", intent.Destination().Hex()))
	}
	return nil
}
