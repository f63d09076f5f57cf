package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"hlbridge/observability/logging"
	"hlbridge/services/bridge"
	"hlbridge/services/bridge/exchange"
	"hlbridge/services/bridge/reconcile"
)

func runWithdrawCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs, true)
	var dest string
	var noWait bool
	fs.StringVar(&dest, "dest", "", "Arbitrum destination address (defaults to the signer)")
	fs.BoolVar(&noWait, "no-wait", false, "exit once the exchange accepts the withdrawal")
	amountArg, err := parseWithAmount(fs, args, "")
	if err != nil {
		return die(stderr, "%v", err)
	}
	var destAddr common.Address
	if trimmed := strings.TrimSpace(dest); trimmed != "" {
		if !common.IsHexAddress(trimmed) {
			return die(stderr, "--dest %q is not a hex address", dest)
		}
		destAddr = common.HexToAddress(trimmed)
	}

	rt, err := newRuntime(ctx, "withdraw", flags, flags.overrides(), stderr)
	if err != nil {
		return die(stderr, "%v", err)
	}
	defer rt.close()

	key, err := rt.loadKey()
	if err != nil {
		return fail(stderr, err)
	}
	signer := key.Address()
	if destAddr == (common.Address{}) {
		destAddr = signer
	}
	fmt.Fprintln(stdout, "Hyperliquid USDC withdraw")
	fmt.Fprintf(stdout, "  Amount:      %s USDC\n", amountArg)
	fmt.Fprintf(stdout, "  PK:          %s\n", logging.MaskKey(key.Hex()))
	fmt.Fprintf(stdout, "  Signer:      %s\n", signer.Hex())
	if rt.cfg.HasUser {
		fmt.Fprintf(stdout, "  User:        %s\n", rt.cfg.User.Hex())
	}
	fmt.Fprintf(stdout, "  Destination: %s\n", destAddr.Hex())
	fmt.Fprintf(stdout, "  Network:     %s\n", rt.cfg.Network)

	proc, err := rt.processor()
	if err != nil {
		return die(stderr, "%v", err)
	}
	req := bridge.WithdrawRequest{
		Amount:      amountArg,
		Key:         key.PrivateKey,
		Destination: destAddr,
		NoWait:      noWait,
	}
	if rt.cfg.HasUser {
		req.User = rt.cfg.User
	}
	res, err := proc.Withdraw(ctx, req)
	if res.Authorization.Nonce() != 0 {
		printEnvelope(stdout, res)
	}
	if err != nil {
		return fail(stderr, err)
	}
	switch {
	case noWait:
		fmt.Fprintln(stdout, "Withdrawal requested. Skipping on-chain credit wait (--no-wait).")
	case !res.Waited:
		fmt.Fprintln(stdout, "Warning: no Arbitrum RPC configured (ARB_RPC); cannot wait for on-chain credit. Exiting after the exchange request.")
	default:
		printOutcome(stdout, res.Outcome)
	}
	return 0
}

func runDepositCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs, true)
	var rpcURL string
	var noWait bool
	fs.StringVar(&rpcURL, "rpc", "", "Arbitrum RPC endpoint (overrides ARB_RPC)")
	fs.BoolVar(&noWait, "no-wait", false, "exit once the deposit transaction is mined")
	amountArg, err := parseWithAmount(fs, args, "")
	if err != nil {
		return die(stderr, "%v", err)
	}
	overrides := flags.overrides()
	overrides.RPCURL = rpcURL

	rt, err := newRuntime(ctx, "deposit", flags, overrides, stderr)
	if err != nil {
		return die(stderr, "%v", err)
	}
	defer rt.close()
	if rt.cfg.RPCURL == "" {
		return die(stderr, "Arbitrum RPC required: set ARB_RPC or ARBITRUM_ALCHEMY_MAINNET, or pass --rpc")
	}
	key, err := rt.loadKey()
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "Hyperliquid USDC deposit")
	fmt.Fprintf(stdout, "  Amount:  %s USDC\n", amountArg)
	fmt.Fprintf(stdout, "  PK:      %s\n", logging.MaskKey(key.Hex()))
	fmt.Fprintf(stdout, "  From:    %s\n", key.Address().Hex())
	fmt.Fprintf(stdout, "  Bridge:  %s\n", rt.cfg.BridgeAddress.Hex())

	proc, err := rt.processor()
	if err != nil {
		return die(stderr, "%v", err)
	}
	req := bridge.DepositRequest{Amount: amountArg, Key: key.PrivateKey, NoWait: noWait}
	if rt.cfg.HasUser {
		req.User = rt.cfg.User
	}
	res, err := proc.Deposit(ctx, req)
	printTransfer(stdout, res.TransferResult)
	if err != nil {
		return fail(stderr, err)
	}
	if !res.Waited {
		fmt.Fprintln(stdout, "Deposit mined. Skipping exchange credit wait (--no-wait).")
		return 0
	}
	printOutcome(stdout, res.Outcome)
	return 0
}

func runSendCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs, true)
	var to, rpcURL string
	fs.StringVar(&to, "to", "", "recipient address (overrides WALLET_ADDRESS)")
	fs.StringVar(&rpcURL, "rpc", "", "Arbitrum RPC endpoint (overrides ARB_RPC)")
	amountArg, err := parseWithAmount(fs, args, os.Getenv("AMOUNT"))
	if err != nil {
		return die(stderr, "%v", err)
	}
	overrides := flags.overrides()
	overrides.Destination = to
	overrides.RPCURL = rpcURL

	rt, err := newRuntime(ctx, "send", flags, overrides, stderr)
	if err != nil {
		return die(stderr, "%v", err)
	}
	defer rt.close()
	if rt.cfg.RPCURL == "" {
		return die(stderr, "Arbitrum RPC required: set ARB_RPC or ARBITRUM_ALCHEMY_MAINNET, or pass --rpc")
	}
	if !rt.cfg.HasDestination {
		return die(stderr, "recipient required: pass --to or set WALLET_ADDRESS")
	}
	key, err := rt.loadKey()
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "USDC transfer")
	fmt.Fprintf(stdout, "  Amount: %s USDC\n", amountArg)
	fmt.Fprintf(stdout, "  From:   %s\n", key.Address().Hex())
	fmt.Fprintf(stdout, "  To:     %s\n", rt.cfg.Destination.Hex())

	proc, err := rt.processor()
	if err != nil {
		return die(stderr, "%v", err)
	}
	res, err := proc.Send(ctx, bridge.SendRequest{Amount: amountArg, Key: key.PrivateKey, To: rt.cfg.Destination})
	printTransfer(stdout, res)
	if err != nil {
		return fail(stderr, err)
	}
	return 0
}

// printEnvelope shows the submitted action with the signature shortened.
func printEnvelope(w io.Writer, res bridge.WithdrawResult) {
	env := exchange.NewWithdrawEnvelope(res.Authorization, res.Signature)
	env.Signature.R = logging.Truncate(env.Signature.R, 10)
	env.Signature.S = logging.Truncate(env.Signature.S, 10)
	raw, err := json.MarshalIndent(env, "  ", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "  Payload:\n  %s\n", raw)
}

func printTransfer(w io.Writer, res bridge.TransferResult) {
	if (res.TxHash == common.Hash{}) {
		return
	}
	fmt.Fprintf(w, "  Tx:      %s\n", res.TxHash.Hex())
	if res.Receipt != nil && res.Receipt.BlockNumber != nil {
		fmt.Fprintf(w, "  Block:   %s (gas used %d)\n", res.Receipt.BlockNumber, res.Receipt.GasUsed)
	}
}

func printOutcome(w io.Writer, out reconcile.Outcome) {
	switch out.Kind {
	case reconcile.Credited:
		fmt.Fprintf(w, "Credited: +%s USDC on %s after %d polls (%s).\n", out.Delta, out.Ledger, out.Polls, out.Elapsed)
	case reconcile.LedgerConfirmed:
		fmt.Fprintf(w, "Credited per ledger history: +%s USDC (%s).\n", out.Delta, out.Elapsed)
	default:
		fmt.Fprintf(w, "Outcome: %s\n", out.Kind)
	}
}
