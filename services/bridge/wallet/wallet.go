// Package wallet moves the collateral token on the EVM chain and watches the
// resulting transactions.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Gateway captures what the transfer flows require from the chain.
type Gateway interface {
	ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, uint8, error)
	SubmitTransfer(ctx context.Context, token, to common.Address, raw *big.Int, key *ecdsa.PrivateKey) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// FuncGateway adapts callback functions to the Gateway interface. Nil
// callbacks return zero values.
type FuncGateway struct {
	ReadBalanceFunc       func(ctx context.Context, token, owner common.Address) (*big.Int, uint8, error)
	SubmitTransferFunc    func(ctx context.Context, token, to common.Address, raw *big.Int, key *ecdsa.PrivateKey) (common.Hash, error)
	AwaitConfirmationFunc func(ctx context.Context, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error)
	NativeBalanceFunc     func(ctx context.Context, owner common.Address) (*big.Int, error)
	ChainIDFunc           func(ctx context.Context) (*big.Int, error)
}

// ReadBalance delegates to the configured callback.
func (g FuncGateway) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, uint8, error) {
	if g.ReadBalanceFunc == nil {
		return new(big.Int), 0, nil
	}
	return g.ReadBalanceFunc(ctx, token, owner)
}

// SubmitTransfer delegates to the configured callback.
func (g FuncGateway) SubmitTransfer(ctx context.Context, token, to common.Address, raw *big.Int, key *ecdsa.PrivateKey) (common.Hash, error) {
	if g.SubmitTransferFunc == nil {
		return common.Hash{}, nil
	}
	return g.SubmitTransferFunc(ctx, token, to, raw, key)
}

// AwaitConfirmation delegates to the configured callback.
func (g FuncGateway) AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error) {
	if g.AwaitConfirmationFunc == nil {
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, TxHash: hash}, nil
	}
	return g.AwaitConfirmationFunc(ctx, hash, timeout)
}

// NativeBalance delegates to the configured callback.
func (g FuncGateway) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if g.NativeBalanceFunc == nil {
		return new(big.Int), nil
	}
	return g.NativeBalanceFunc(ctx, owner)
}

// ChainID delegates to the configured callback.
func (g FuncGateway) ChainID(ctx context.Context) (*big.Int, error) {
	if g.ChainIDFunc == nil {
		return new(big.Int), nil
	}
	return g.ChainIDFunc(ctx)
}

var (
	_ Gateway = FuncGateway{}
	_ Gateway = (*EVM)(nil)
)
