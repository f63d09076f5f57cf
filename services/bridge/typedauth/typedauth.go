// Package typedauth builds and signs the EIP-712 withdrawal authorization the
// exchange verifies off-chain.
//
// The document is hashed with the full domain, type schema and message, so the
// signature only verifies when every byte of the signed strings matches what
// the exchange reconstructs on its side.
package typedauth

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// DomainName identifies the exchange signing domain.
	DomainName = "HyperliquidSignTransaction"
	// DomainVersion is the fixed domain version.
	DomainVersion = "1"
	// WithdrawPrimaryType is the primary type of the withdrawal action. The colon
	// is part of the type name.
	WithdrawPrimaryType = "HyperliquidTransaction:Withdraw"
)

// ZeroAddress is used as the verifying contract; the exchange does not verify
// on-chain.
var ZeroAddress = common.Address{}

var domainSchema = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var withdrawSchema = []apitypes.Type{
	{Name: "hyperliquidChain", Type: "string"},
	{Name: "destination", Type: "string"},
	{Name: "amount", Type: "string"},
	{Name: "time", Type: "uint64"},
}

// WithdrawRequest carries the inputs of a withdrawal authorization. Time is the
// millisecond timestamp captured once by the caller; it becomes both the
// message time and the request nonce.
type WithdrawRequest struct {
	HyperliquidChain string
	SignatureChainID uint64
	Destination      string
	Amount           string
	Time             uint64
}

// Authorization is an immutable typed-data document ready for signing.
type Authorization struct {
	typed            apitypes.TypedData
	hyperliquidChain string
	signatureChainID uint64
	destination      string
	amount           string
	nonce            uint64
}

// BuildWithdraw constructs the withdrawal document. The destination is lower
// cased here; callers must pass the address unmodified otherwise.
func BuildWithdraw(req WithdrawRequest) (Authorization, error) {
	chain := strings.TrimSpace(req.HyperliquidChain)
	if chain == "" {
		return Authorization{}, fmt.Errorf("typedauth: hyperliquid chain required")
	}
	if req.SignatureChainID == 0 {
		return Authorization{}, fmt.Errorf("typedauth: signature chain id required")
	}
	dest := strings.TrimSpace(req.Destination)
	if !common.IsHexAddress(dest) {
		return Authorization{}, fmt.Errorf("typedauth: destination %q is not a hex address", req.Destination)
	}
	dest = strings.ToLower(dest)
	amount := strings.TrimSpace(req.Amount)
	if amount == "" {
		return Authorization{}, fmt.Errorf("typedauth: amount required")
	}
	if req.Time == 0 {
		return Authorization{}, fmt.Errorf("typedauth: time required")
	}

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":      domainSchema,
			WithdrawPrimaryType: withdrawSchema,
		},
		PrimaryType: WithdrawPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(req.SignatureChainID)),
			VerifyingContract: ZeroAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": chain,
			"destination":      dest,
			"amount":           amount,
			"time":             math.NewHexOrDecimal256(int64(req.Time)),
		},
	}
	return Authorization{
		typed:            typed,
		hyperliquidChain: chain,
		signatureChainID: req.SignatureChainID,
		destination:      dest,
		amount:           amount,
		nonce:            req.Time,
	}, nil
}

// Nonce returns the request nonce, which is the message time.
func (a Authorization) Nonce() uint64 { return a.nonce }

// HyperliquidChain returns the network label embedded in the message.
func (a Authorization) HyperliquidChain() string { return a.hyperliquidChain }

// SignatureChainID returns the domain chain id.
func (a Authorization) SignatureChainID() uint64 { return a.signatureChainID }

// SignatureChainIDHex renders the domain chain id the way the action envelope
// expects it, e.g. "0xa4b1".
func (a Authorization) SignatureChainIDHex() string {
	return fmt.Sprintf("0x%x", a.signatureChainID)
}

// Destination returns the lower-cased destination address.
func (a Authorization) Destination() string { return a.destination }

// Amount returns the decimal amount string exactly as signed.
func (a Authorization) Amount() string { return a.amount }

// MessageTime reads the time field back out of the signed message.
func (a Authorization) MessageTime() (uint64, error) {
	raw, ok := a.typed.Message["time"].(*math.HexOrDecimal256)
	if !ok || raw == nil {
		return 0, fmt.Errorf("typedauth: message time missing")
	}
	return (*big.Int)(raw).Uint64(), nil
}

// TypedData returns a copy of the underlying document.
func (a Authorization) TypedData() apitypes.TypedData {
	out := a.typed
	out.Message = make(apitypes.TypedDataMessage, len(a.typed.Message))
	for k, v := range a.typed.Message {
		out.Message[k] = v
	}
	return out
}

// Hash returns the EIP-712 digest: keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func (a Authorization) Hash() ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(a.typed)
	if err != nil {
		return nil, fmt.Errorf("typedauth: hash typed data: %w", err)
	}
	return hash, nil
}

// MarshalJSON renders the full typed-data document for operator review.
func (a Authorization) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.typed)
}
