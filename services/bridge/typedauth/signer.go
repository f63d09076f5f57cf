package typedauth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"hlbridge/services/bridge/bridgeerr"
)

// Signature is a secp256k1 recoverable signature with V normalised to 27/28.
type Signature struct {
	R *uint256.Int
	S *uint256.Int
	V uint8
}

// SignatureFromBytes parses a 65-byte [R || S || V] signature. V may be 0/1 or
// 27/28.
func SignatureFromBytes(sig []byte) (Signature, error) {
	if len(sig) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("typedauth: signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return Signature{}, fmt.Errorf("typedauth: invalid recovery id %d", sig[64])
	}
	return Signature{
		R: new(uint256.Int).SetBytes32(sig[:32]),
		S: new(uint256.Int).SetBytes32(sig[32:64]),
		V: v,
	}, nil
}

// Bytes returns the 65-byte [R || S || V] encoding with V as 27/28.
func (s Signature) Bytes() []byte {
	out := make([]byte, crypto.SignatureLength)
	if s.R != nil {
		r := s.R.Bytes32()
		copy(out[:32], r[:])
	}
	if s.S != nil {
		sv := s.S.Bytes32()
		copy(out[32:64], sv[:])
	}
	out[64] = s.V
	return out
}

// RHex renders R as a 0x-prefixed 32-byte hex string.
func (s Signature) RHex() string { return word(s.R) }

// SHex renders S as a 0x-prefixed 32-byte hex string.
func (s Signature) SHex() string { return word(s.S) }

func word(v *uint256.Int) string {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// Sign hashes the authorization and signs the digest with key.
func Sign(key *ecdsa.PrivateKey, auth Authorization) (Signature, error) {
	if key == nil {
		return Signature{}, bridgeerr.ErrInvalidKey
	}
	digest, err := auth.Hash()
	if err != nil {
		return Signature{}, err
	}
	raw, err := crypto.Sign(digest, key)
	if err != nil {
		return Signature{}, fmt.Errorf("typedauth: sign digest: %w", err)
	}
	return SignatureFromBytes(raw)
}

// RecoverSigner returns the address that produced sig over auth.
func RecoverSigner(auth Authorization, sig Signature) (common.Address, error) {
	digest, err := auth.Hash()
	if err != nil {
		return common.Address{}, err
	}
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, errors.New("typedauth: signature v must be 27 or 28")
	}
	raw := sig.Bytes()
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("typedauth: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignAndVerify signs auth and checks that the recovered address is the key's
// own address. A mismatch means the encoded document differs from the hashed
// one and must never be submitted.
func SignAndVerify(key *ecdsa.PrivateKey, auth Authorization) (Signature, error) {
	sig, err := Sign(key, auth)
	if err != nil {
		return Signature{}, err
	}
	recovered, err := RecoverSigner(auth, sig)
	if err != nil {
		return Signature{}, err
	}
	want := crypto.PubkeyToAddress(key.PublicKey)
	if recovered != want {
		return Signature{}, fmt.Errorf("%w: recovered %s, signer %s", bridgeerr.ErrSignatureMismatch, recovered.Hex(), want.Hex())
	}
	return sig, nil
}
