package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"hlbridge/services/bridge/amount"
	"hlbridge/services/bridge/bridgeerr"
)

const erc20ABIJSON = `[
  {"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI               = mustParseABI(erc20ABIJSON)
	transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("wallet: parse erc20 abi: %v", err))
	}
	return parsed
}

const (
	defaultRPCTimeout   = 30 * time.Second
	defaultPollInterval = 2 * time.Second

	// DefaultReceiptTimeout bounds AwaitConfirmation when no timeout is given.
	DefaultReceiptTimeout = 3 * time.Minute
)

// EVMClient defines the subset of the Ethereum RPC used by the gateway.
type EVMClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("wallet: evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// EVMConfig configures the gateway. ChainID is the id transactions are signed
// for; PriorityFee is the EIP-1559 tip and defaults to zero.
type EVMConfig struct {
	ChainID      *big.Int
	PriorityFee  *big.Int
	RPCTimeout   time.Duration
	PollInterval time.Duration
}

// EVM implements Gateway against an Ethereum node.
type EVM struct {
	client       EVMClient
	chainID      *big.Int
	tip          *big.Int
	rpcTimeout   time.Duration
	pollInterval time.Duration
}

// NewEVM constructs a gateway from an Ethereum client.
func NewEVM(client EVMClient, cfg EVMConfig) (*EVM, error) {
	if client == nil {
		return nil, fmt.Errorf("wallet: evm client required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("wallet: chain id required")
	}
	tip := new(big.Int)
	if cfg.PriorityFee != nil {
		tip.Set(cfg.PriorityFee)
	}
	rpcTimeout := cfg.RPCTimeout
	if rpcTimeout <= 0 {
		rpcTimeout = defaultRPCTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &EVM{
		client:       client,
		chainID:      new(big.Int).Set(cfg.ChainID),
		tip:          tip,
		rpcTimeout:   rpcTimeout,
		pollInterval: poll,
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("wallet: %s: %w: %w", op, bridgeerr.ErrGatewayUnavailable, err)
}

// ReadBalance returns the raw token balance of owner and the token's decimals.
func (e *EVM) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	defer cancel()

	decimalsOut, err := e.call(ctx, token, "decimals")
	if err != nil {
		return nil, 0, err
	}
	decimals, ok := decimalsOut[0].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("wallet: decimals returned %T", decimalsOut[0])
	}
	if decimals > amount.MaxDecimals {
		return nil, 0, fmt.Errorf("wallet: token reports %d decimals", decimals)
	}
	balanceOut, err := e.call(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, 0, err
	}
	balance, ok := balanceOut[0].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("wallet: balanceOf returned %T", balanceOut[0])
	}
	return balance, decimals, nil
}

func (e *EVM) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("wallet: pack %s: %w", method, err)
	}
	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, unavailable("call "+method, err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("wallet: %s returned nothing", method)
	}
	return out, nil
}

// NativeBalance returns the gas token balance of owner.
func (e *EVM) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	defer cancel()
	bal, err := e.client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, unavailable("native balance", err)
	}
	return bal, nil
}

// ChainID returns the chain id reported by the node.
func (e *EVM) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	defer cancel()
	id, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, unavailable("chain id", err)
	}
	return id, nil
}

// SubmitTransfer signs and broadcasts an ERC-20 transfer of raw units to to.
// The fee model is EIP-1559 when the head block carries a base fee and legacy
// otherwise. The transaction is sent once; underpriced transactions are not
// retried.
func (e *EVM) SubmitTransfer(ctx context.Context, token, to common.Address, raw *big.Int, key *ecdsa.PrivateKey) (common.Hash, error) {
	if key == nil {
		return common.Hash{}, bridgeerr.ErrInvalidKey
	}
	if raw == nil || raw.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: transfer amount must be positive", bridgeerr.ErrInvalidAmount)
	}
	if (to == common.Address{}) {
		return common.Hash{}, fmt.Errorf("wallet: destination address required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	defer cancel()

	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	data, err := erc20ABI.Pack("transfer", to, raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: pack transfer: %w", err)
	}
	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, unavailable("pending nonce", err)
	}
	estimate, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
	if err != nil {
		return common.Hash{}, unavailable("estimate gas", err)
	}
	gas := PadGas(estimate)

	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, unavailable("latest header", err)
	}
	var tx *gethtypes.Transaction
	if header != nil && header.BaseFee != nil {
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).Set(e.chainID),
			Nonce:     nonce,
			GasTipCap: new(big.Int).Set(e.tip),
			GasFeeCap: MaxFeePerGas(header.BaseFee, e.tip),
			Gas:       gas,
			To:        &token,
			Value:     new(big.Int),
			Data:      data,
		})
	} else {
		gasPrice, err := e.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, unavailable("gas price", err)
		}
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &token,
			Value:    new(big.Int),
			Data:     data,
		})
	}
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(e.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: sign transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, unavailable("send transaction", err)
	}
	return signed.Hash(), nil
}

// PadGas adds a 20% margin to a gas estimate.
func PadGas(estimate uint64) uint64 {
	return estimate + estimate/5
}

// MaxFeePerGas returns 1.2 × baseFee + tip.
func MaxFeePerGas(baseFee, tip *big.Int) *big.Int {
	fee := new(big.Int).Mul(baseFee, big.NewInt(12))
	fee.Quo(fee, big.NewInt(10))
	if tip != nil {
		fee.Add(fee, tip)
	}
	return fee
}

// AwaitConfirmation polls for the receipt of hash until it is mined or the
// timeout elapses. Lookup failures other than not-found are retried on the
// next tick.
func (e *EVM) AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error) {
	if (hash == common.Hash{}) {
		return nil, fmt.Errorf("wallet: tx hash required")
	}
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", bridgeerr.ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if lastErr != nil {
					return nil, fmt.Errorf("%w: %s after %s (last error: %v)", bridgeerr.ErrConfirmationTimeout, hash.Hex(), timeout, lastErr)
				}
				return nil, fmt.Errorf("%w: %s after %s", bridgeerr.ErrConfirmationTimeout, hash.Hex(), timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// MatchTransfer reports whether receipt carries a Transfer event of token
// paying amount to collector.
func MatchTransfer(receipt *gethtypes.Receipt, token, collector common.Address, amount *big.Int) bool {
	if receipt == nil || amount == nil {
		return false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != token || len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != transferEventSignature {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != collector {
			continue
		}
		if new(big.Int).SetBytes(log.Data).Cmp(amount) == 0 {
			return true
		}
	}
	return false
}
