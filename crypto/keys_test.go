package crypto

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"hlbridge/services/bridge/bridgeerr"
)

const (
	testKeyHex  = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func useLightScrypt(t *testing.T) {
	t.Helper()
	prevN, prevP := scryptN, scryptP
	scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { scryptN, scryptP = prevN, prevP })
}

func TestParsePrivateKeyHex(t *testing.T) {
	key, err := ParsePrivateKeyHex("  " + testKeyHex + "\n")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testAddress), key.Address())
	require.Equal(t, testKeyHex, key.Hex())
}

func TestParsePrivateKeyHexRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"no prefix": testKeyHex[2:],
		"short":     testKeyHex[:64],
		"not hex":   "0x" + "zz" + testKeyHex[4:],
		"zero":      "0x0000000000000000000000000000000000000000000000000000000000000000",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePrivateKeyHex(raw)
			require.ErrorIs(t, err, bridgeerr.ErrInvalidKey)
		})
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	useLightScrypt(t)
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "signer.json")
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.ErrorContains(t, err, "decrypt keystore")
}

func TestLoadKeyPrefersHex(t *testing.T) {
	called := false
	key, err := LoadKey(testKeyHex, "/does/not/matter", func() (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, common.HexToAddress(testAddress), key.Address())
}

func TestLoadKeyFromKeystore(t *testing.T) {
	useLightScrypt(t)
	key, err := ParsePrivateKeyHex(testKeyHex)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, SaveToKeystore(path, key, "pw"))

	loaded, err := LoadKey("", path, func() (string, error) { return "pw", nil })
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadKey("", path, func() (string, error) { return "bad", nil })
	require.ErrorIs(t, err, bridgeerr.ErrInvalidKey)

	prompt := errors.New("no terminal")
	_, err = LoadKey("", path, func() (string, error) { return "", prompt })
	require.ErrorIs(t, err, prompt)
}

func TestLoadKeyMissing(t *testing.T) {
	_, err := LoadKey("", "", nil)
	require.ErrorIs(t, err, bridgeerr.ErrInvalidKey)
}
