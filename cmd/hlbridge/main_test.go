package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"hlbridge/crypto"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// clearEnv isolates a test from the operator's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PK", "PK_RECIPIENT_B", "PRIVATE_KEY",
		"ARB_RPC", "ARBITRUM_ALCHEMY_MAINNET",
		"USER_ADDRESS", "USER", "WALLET_ADDRESS",
		"HL_NETWORK", "CHAIN_ID", "SIG_CHAIN_ID", "SIG_CHAIN_ID_TESTNET",
		"HLBRIDGE_ENV", "HLBRIDGE_LOG_LEVEL", "PUSHGATEWAY_URL",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "AMOUNT",
	} {
		t.Setenv(key, "")
	}
}

type exchangeStub struct {
	mu      sync.Mutex
	actions []map[string]any
}

func newExchangeStub(t *testing.T, withdrawable string) (*httptest.Server, *exchangeStub) {
	t.Helper()
	stub := &exchangeStub{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			switch body["type"] {
			case "clearinghouseState":
				_, _ = io.WriteString(w, `{"marginSummary":{"accountValue":"60","totalNtlPos":"0","totalRawUsd":"60","totalMarginUsed":"0"},"withdrawable":"`+withdrawable+`"}`)
			case "spotClearinghouseState":
				_, _ = io.WriteString(w, `{"balances":[{"coin":"USDC","total":"19.6","hold":"0"}]}`)
			case "allMids":
				_, _ = io.WriteString(w, `{"BTC":"65000.5","ETH":"3100"}`)
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		case "/exchange":
			stub.mu.Lock()
			stub.actions = append(stub.actions, body)
			stub.mu.Unlock()
			_, _ = io.WriteString(w, `{"status":"ok","response":{"type":"default"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, stub
}

func writeConfig(t *testing.T, values map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(values)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "hlbridge.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI("bridge-everything")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Unknown command: bridge-everything")
	require.Contains(t, stderr, "Usage: hlbridge")
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	code, _, stderr := runCLI()
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "withdraw <amount>")

	code, stdout, _ := runCLI("help")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "keystore-import")
}

func TestParseWithAmount(t *testing.T) {
	newFS := func() (*flag.FlagSet, *string, *bool) {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		dest := fs.String("dest", "", "")
		noWait := fs.Bool("no-wait", false, "")
		return fs, dest, noWait
	}

	fs, dest, noWait := newFS()
	amount, err := parseWithAmount(fs, []string{"12.5", "--dest", "0xabc", "--no-wait"}, "")
	require.NoError(t, err)
	require.Equal(t, "12.5", amount)
	require.Equal(t, "0xabc", *dest)
	require.True(t, *noWait)

	fs, _, _ = newFS()
	amount, err = parseWithAmount(fs, []string{"--no-wait", "7"}, "")
	require.NoError(t, err)
	require.Equal(t, "7", amount)

	fs, _, _ = newFS()
	amount, err = parseWithAmount(fs, nil, " 9 ")
	require.NoError(t, err)
	require.Equal(t, "9", amount)

	fs, _, _ = newFS()
	_, err = parseWithAmount(fs, []string{"1", "2"}, "")
	require.ErrorContains(t, err, "got 2")

	fs, _, _ = newFS()
	_, err = parseWithAmount(fs, nil, "")
	require.ErrorContains(t, err, "got 0")
}

func TestWithdrawMissingAmount(t *testing.T) {
	clearEnv(t)
	code, _, stderr := runCLI("withdraw", "--pk", testKey)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "expected exactly one amount argument")
}

func TestWithdrawRejectsMalformedKey(t *testing.T) {
	clearEnv(t)
	server, stub := newExchangeStub(t, "50")
	cfg := writeConfig(t, map[string]any{"exchange_url": server.URL})

	code, _, stderr := runCLI("withdraw", "10", "--config", cfg, "--pk", "0x1234")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid private key")
	require.Empty(t, stub.actions)
}

func TestWithdrawRejectsBadDestination(t *testing.T) {
	clearEnv(t)
	code, _, stderr := runCLI("withdraw", "10", "--pk", testKey, "--dest", "nowhere")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "not a hex address")
}

func TestWithdrawNoWaitSubmitsSignedAction(t *testing.T) {
	clearEnv(t)
	server, stub := newExchangeStub(t, "50")
	cfg := writeConfig(t, map[string]any{
		"exchange_url": server.URL,
		"secret_key":   testKey,
	})

	code, stdout, stderr := runCLI("withdraw", "--config", cfg, "10", "--no-wait")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.Contains(t, stdout, "withdraw3")
	require.Contains(t, stdout, "--no-wait")
	require.NotContains(t, stdout, testKey)

	require.Len(t, stub.actions, 1)
	action, ok := stub.actions[0]["action"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "withdraw3", action["type"])
	require.Equal(t, "Mainnet", action["hyperliquidChain"])
	require.Equal(t, "0xa4b1", action["signatureChainId"])
	require.Equal(t, "10", action["amount"])
	require.Equal(t, stub.actions[0]["nonce"], action["time"])
}

func TestWithdrawInsufficientWithdrawable(t *testing.T) {
	clearEnv(t)
	server, stub := newExchangeStub(t, "4.8")
	cfg := writeConfig(t, map[string]any{"exchange_url": server.URL})

	code, _, stderr := runCLI("withdraw", "5", "--config", cfg, "--pk", testKey, "--no-wait")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "insufficient source funds")
	require.Empty(t, stub.actions)
}

func TestDepositRequiresRPC(t *testing.T) {
	clearEnv(t)
	code, _, stderr := runCLI("deposit", "10", "--pk", testKey)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Arbitrum RPC required")
}

func TestSendRequiresRecipient(t *testing.T) {
	clearEnv(t)
	code, _, stderr := runCLI("send", "10", "--pk", testKey, "--rpc", "http://127.0.0.1:1")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "recipient required")
}

func TestSummaryPrintsAccount(t *testing.T) {
	clearEnv(t)
	server, _ := newExchangeStub(t, "4.8")
	cfg := writeConfig(t, map[string]any{"exchange_url": server.URL})

	code, stdout, stderr := runCLI("summary", "--config", cfg, "--user", "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", "--mids", "1")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "Withdrawable:  4.8")
	require.Contains(t, stdout, "USDC")
	require.Contains(t, stdout, "BTC")
	require.NotContains(t, stdout, "ETH")
}

func TestKeystoreImport(t *testing.T) {
	clearEnv(t)
	t.Setenv("HLBRIDGE_KEYSTORE_PASSPHRASE", "correct horse")
	out := filepath.Join(t.TempDir(), "signer.json")

	code, _, stderr := runCLI("keystore-import", "--out", out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no key to import")

	code, stdout, stderr := runCLI("keystore-import", "--pk", testKey, "--out", out)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeystoreImportGenerate(t *testing.T) {
	clearEnv(t)
	t.Setenv("HLBRIDGE_KEYSTORE_PASSPHRASE", "correct horse")
	out := filepath.Join(t.TempDir(), "fresh.json")

	code, _, stderr := runCLI("keystore-import", "--generate", "--pk", testKey, "--out", out)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "mutually exclusive")

	code, stdout, stderr := runCLI("keystore-import", "--generate", "--out", out)
	require.Equal(t, 0, code, stderr)
	key, err := crypto.LoadFromKeystore(out, "correct horse")
	require.NoError(t, err)
	require.Contains(t, stdout, key.Address().Hex())
}
