package bridge

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hlbridge/services/bridge/amount"
	"hlbridge/services/bridge/bridgeerr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewIntent(t *testing.T) {
	src := common.HexToAddress("0x01")
	intent, err := NewIntent(Deposit, " 20.50 ", src, otherAddr, 42161)
	require.NoError(t, err)
	require.Equal(t, Deposit, intent.Direction())
	require.Equal(t, "20.50", intent.AmountHuman())
	require.True(t, dec("20.5").Equal(intent.Amount()))
	require.Equal(t, "USDC", intent.Asset())
	require.Equal(t, src, intent.Source())
	require.Equal(t, otherAddr, intent.Destination())
	require.Equal(t, uint64(42161), intent.ChainID())

	_, err = NewIntent(Direction("sideways"), "1", src, otherAddr, 1)
	require.Error(t, err)
	_, err = NewIntent(Withdraw, "0", src, otherAddr, 1)
	require.ErrorIs(t, err, bridgeerr.ErrInvalidAmount)
	_, err = NewIntent(Withdraw, "1", src, common.Address{}, 1)
	require.Error(t, err)
}

func TestPolicyThresholds(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.CheckMinimum(dec("5")))
	require.ErrorIs(t, p.CheckMinimum(dec("4.999999")), bridgeerr.ErrAmountTooSmall)

	require.NoError(t, p.CheckWithdrawable(dec("5"), dec("4.9")))
	require.ErrorIs(t, p.CheckWithdrawable(dec("5"), dec("4.8")), bridgeerr.ErrInsufficientSourceFunds)

	require.NoError(t, Policy{MinTransfer: dec("5")}.CheckWithdrawable(dec("10"), dec("9.8")))
}

func TestPolicyOnChainScenario(t *testing.T) {
	raw, err := amount.ToFixedPoint("10", 6)
	require.NoError(t, err)
	require.Equal(t, "10000000", raw.String())

	p := DefaultPolicy()
	err = p.CheckOnChain(otherAddr, raw, big.NewInt(5_000_000), 6)
	require.ErrorIs(t, err, bridgeerr.ErrInsufficientSourceFunds)
	require.Contains(t, err.Error(), "holds 5 USDC, need 10")
	require.NoError(t, p.CheckOnChain(otherAddr, raw, big.NewInt(10_000_000), 6))

	require.ErrorIs(t, p.CheckGas(otherAddr, big.NewInt(0)), bridgeerr.ErrInsufficientSourceFunds)
	require.NoError(t, p.CheckGas(otherAddr, big.NewInt(1)))
}

func TestCheckSigner(t *testing.T) {
	a := common.HexToAddress("0x0a")
	require.NoError(t, CheckSigner(a, a))
	require.ErrorIs(t, CheckSigner(a, otherAddr), bridgeerr.ErrSignerMismatch)
}

func TestExpectedCredit(t *testing.T) {
	fee, err := DefaultWithdrawFee.WithdrawFee(context.Background())
	require.NoError(t, err)
	got, err := ExpectedCredit(dec("10"), fee)
	require.NoError(t, err)
	require.True(t, dec("9").Equal(got))

	_, err = ExpectedCredit(dec("1"), fee)
	require.ErrorIs(t, err, bridgeerr.ErrAmountTooSmall)
}
