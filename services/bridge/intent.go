// Package bridge moves USDC between the exchange ledger and Arbitrum and
// confirms the credit on the receiving side. It wires the typed
// authorization, the exchange and chain gateways and the reconciler into the
// withdraw, deposit and send flows.
package bridge

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hlbridge/services/bridge/amount"
)

// Asset is the only collateral the bridge moves.
const Asset = "USDC"

// Direction names the ledger a transfer leaves from.
type Direction string

const (
	// Withdraw moves collateral from the exchange to the chain.
	Withdraw Direction = "withdraw"
	// Deposit moves collateral from the chain to the exchange.
	Deposit Direction = "deposit"
	// Send is a plain on-chain transfer with no exchange leg.
	Send Direction = "send"
)

// Intent is one requested transfer. It is immutable once built.
type Intent struct {
	direction   Direction
	amountHuman string
	amount      decimal.Decimal
	source      common.Address
	destination common.Address
	chainID     uint64
}

// NewIntent validates the amount string and captures the transfer endpoints.
func NewIntent(direction Direction, amountHuman string, source, destination common.Address, chainID uint64) (Intent, error) {
	switch direction {
	case Withdraw, Deposit, Send:
	default:
		return Intent{}, fmt.Errorf("bridge: unknown direction %q", direction)
	}
	value, err := amount.Parse(amountHuman)
	if err != nil {
		return Intent{}, err
	}
	if destination == (common.Address{}) {
		return Intent{}, fmt.Errorf("bridge: destination required")
	}
	return Intent{
		direction:   direction,
		amountHuman: strings.TrimSpace(amountHuman),
		amount:      value,
		source:      source,
		destination: destination,
		chainID:     chainID,
	}, nil
}

func (i Intent) Direction() Direction { return i.direction }
func (i Intent) AmountHuman() string { return i.amountHuman }
func (i Intent) Amount() decimal.Decimal { return i.amount }
func (i Intent) Asset() string { return Asset }
func (i Intent) Source() common.Address { return i.source }
func (i Intent) Destination() common.Address { return i.destination }
func (i Intent) ChainID() uint64 { return i.chainID }
