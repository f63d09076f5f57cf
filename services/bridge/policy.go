package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hlbridge/services/bridge/amount"
	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/reconcile"
)

// DefaultMinTransfer is the smallest amount the exchange bridges in either
// direction.
var DefaultMinTransfer = decimal.NewFromInt(5)

// Policy holds the pre-flight limits applied before any transfer is signed
// or submitted.
type Policy struct {
	MinTransfer decimal.Decimal
	Tolerance   decimal.Decimal
}

// DefaultPolicy returns the exchange minimum with the 2% tolerance.
func DefaultPolicy() Policy {
	return Policy{MinTransfer: DefaultMinTransfer, Tolerance: reconcile.DefaultTolerance}
}

func (p Policy) tolerance() decimal.Decimal {
	if p.Tolerance.Sign() <= 0 {
		return reconcile.DefaultTolerance
	}
	return p.Tolerance
}

// CheckMinimum rejects amounts under the exchange minimum.
func (p Policy) CheckMinimum(value decimal.Decimal) error {
	if value.LessThan(p.MinTransfer) {
		return fmt.Errorf("%w: %s %s is below the minimum of %s", bridgeerr.ErrAmountTooSmall, value, Asset, p.MinTransfer)
	}
	return nil
}

// CheckWithdrawable requires the exchange withdrawable balance to cover the
// amount scaled by the tolerance.
func (p Policy) CheckWithdrawable(value, withdrawable decimal.Decimal) error {
	required := value.Mul(p.tolerance())
	if withdrawable.LessThan(required) {
		return fmt.Errorf("%w: withdrawable %s %s, need at least %s for %s", bridgeerr.ErrInsufficientSourceFunds, withdrawable, Asset, required, value)
	}
	return nil
}

// CheckOnChain requires the token balance to cover the raw transfer amount.
func (p Policy) CheckOnChain(owner common.Address, raw, balance *big.Int, decimals uint8) error {
	if balance == nil || balance.Cmp(raw) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, need %s", bridgeerr.ErrInsufficientSourceFunds,
			owner.Hex(), amount.FormatFixedPoint(balance, decimals), Asset, amount.FormatFixedPoint(raw, decimals))
	}
	return nil
}

// CheckGas requires a non-zero native balance to pay for the transfer.
func (p Policy) CheckGas(owner common.Address, native *big.Int) error {
	if native == nil || native.Sign() <= 0 {
		return fmt.Errorf("%w: %s has no ETH for gas", bridgeerr.ErrInsufficientSourceFunds, owner.Hex())
	}
	return nil
}

// CheckSigner requires withdrawals to be signed by the funded exchange
// account.
func CheckSigner(signer, user common.Address) error {
	if signer != user {
		return fmt.Errorf("%w: signer %s, exchange user %s; use the funded account's key or fix the configured user",
			bridgeerr.ErrSignerMismatch, signer.Hex(), user.Hex())
	}
	return nil
}

// FeeSource reports the flat fee the exchange deducts from a withdrawal.
type FeeSource interface {
	WithdrawFee(ctx context.Context) (decimal.Decimal, error)
}

// StaticFee is a FeeSource backed by configuration.
type StaticFee decimal.Decimal

// DefaultWithdrawFee is the flat withdrawal fee the exchange charges today.
var DefaultWithdrawFee = StaticFee(decimal.NewFromInt(1))

// WithdrawFee returns the configured fee.
func (f StaticFee) WithdrawFee(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// ExpectedCredit returns the amount that should land after fee is deducted.
// It fails with ErrAmountTooSmall when the fee consumes the whole amount.
func ExpectedCredit(value, fee decimal.Decimal) (decimal.Decimal, error) {
	expected := value.Sub(fee)
	if expected.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: fee %s consumes the full amount %s", bridgeerr.ErrAmountTooSmall, fee, value)
	}
	return expected, nil
}
