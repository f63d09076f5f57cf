package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"hlbridge/services/bridge/bridgeerr"
)

// hexKeyLength is the length of a 0x-prefixed 32-byte key.
const hexKeyLength = 66

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

// GeneratePrivateKey creates a fresh secp256k1 signing key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// ParsePrivateKeyHex accepts exactly 0x followed by 64 hex digits. Anything
// else fails with bridgeerr.ErrInvalidKey before the key touches the curve.
func ParsePrivateKeyHex(raw string) (*PrivateKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: missing", bridgeerr.ErrInvalidKey)
	}
	if !strings.HasPrefix(trimmed, "0x") || len(trimmed) != hexKeyLength {
		return nil, fmt.Errorf("%w: expected 0x followed by 64 hex characters", bridgeerr.ErrInvalidKey)
	}
	b, err := hex.DecodeString(trimmed[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", bridgeerr.ErrInvalidKey)
	}
	key, err := PrivateKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerr.ErrInvalidKey, err)
	}
	return key, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Hex renders the key with its 0x prefix. Never log the result unmasked.
func (k *PrivateKey) Hex() string {
	return "0x" + hex.EncodeToString(k.Bytes())
}

// Address derives the EVM account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// LoadKey returns the signing key from a raw hex value, or from the keystore
// at keystorePath when no hex value is configured. passphrase is only
// consulted for the keystore.
func LoadKey(hexKey, keystorePath string, passphrase func() (string, error)) (*PrivateKey, error) {
	if strings.TrimSpace(hexKey) != "" {
		return ParsePrivateKeyHex(hexKey)
	}
	if strings.TrimSpace(keystorePath) == "" {
		return nil, fmt.Errorf("%w: provide --pk 0x<64-hex>, set PK/PK_RECIPIENT_B, or configure secret_key or keystore_path", bridgeerr.ErrInvalidKey)
	}
	if passphrase == nil {
		return nil, errors.New("crypto: keystore passphrase source required")
	}
	secret, err := passphrase()
	if err != nil {
		return nil, err
	}
	key, err := LoadFromKeystore(keystorePath, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerr.ErrInvalidKey, err)
	}
	return key, nil
}
