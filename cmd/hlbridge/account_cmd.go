package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"hlbridge/cmd/internal/passphrase"
	"hlbridge/config"
	"hlbridge/crypto"
)

func runSummaryCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs, true)
	var userFlag string
	var mids int
	fs.StringVar(&userFlag, "user", "", "exchange account to inspect (defaults to USER_ADDRESS or the signer)")
	fs.IntVar(&mids, "mids", 10, "number of mid prices to show (0 disables)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return die(stderr, "unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	rt, err := newRuntime(ctx, "summary", flags, flags.overrides(), stderr)
	if err != nil {
		return die(stderr, "%v", err)
	}
	defer rt.close()

	var user common.Address
	switch {
	case strings.TrimSpace(userFlag) != "":
		if !common.IsHexAddress(strings.TrimSpace(userFlag)) {
			return die(stderr, "--user %q is not a hex address", userFlag)
		}
		user = common.HexToAddress(strings.TrimSpace(userFlag))
	case rt.cfg.HasUser:
		user = rt.cfg.User
	default:
		key, err := rt.loadKey()
		if err != nil {
			return fail(stderr, err)
		}
		user = key.Address()
	}

	proc, err := rt.processor()
	if err != nil {
		return die(stderr, "%v", err)
	}
	summary, err := proc.Summary(ctx, user, mids)
	if err != nil {
		return fail(stderr, err)
	}

	fmt.Fprintf(stdout, "Account %s (%s)\n", summary.User.Hex(), rt.cfg.Network)
	margin := summary.Perp.MarginSummary
	fmt.Fprintln(stdout, "Perp:")
	fmt.Fprintf(stdout, "  Account value: %s\n", margin.AccountValue)
	fmt.Fprintf(stdout, "  Margin used:   %s\n", margin.TotalMarginUsed)
	fmt.Fprintf(stdout, "  Notional:      %s\n", margin.TotalNtlPos)
	fmt.Fprintf(stdout, "  Withdrawable:  %s\n", summary.Perp.Withdrawable)
	fmt.Fprintln(stdout, "Spot:")
	if len(summary.Spot.Balances) == 0 {
		fmt.Fprintln(stdout, "  (no balances)")
	}
	for _, bal := range summary.Spot.Balances {
		fmt.Fprintf(stdout, "  %-8s total %s hold %s\n", bal.Coin, bal.Total, bal.Hold)
	}
	if len(summary.Mids) > 0 {
		fmt.Fprintln(stdout, "Mids:")
		for _, mid := range summary.Mids {
			fmt.Fprintf(stdout, "  %-8s %s\n", mid.Coin, mid.Price)
		}
	}
	return 0
}

// runKeystoreImportCommand encrypts a raw or freshly generated signing key
// into a v3 keystore so later runs can use keystore_path instead of a
// plaintext key.
func runKeystoreImportCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keystore-import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var pk, out string
	var generate bool
	fs.StringVar(&pk, "pk", "", "signing key as 0x followed by 64 hex characters (defaults to PK)")
	fs.StringVar(&out, "out", "", "keystore file to write")
	fs.BoolVar(&generate, "generate", false, "create a new signing key instead of importing one")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return die(stderr, "--out is required")
	}
	var key *crypto.PrivateKey
	if generate {
		if strings.TrimSpace(pk) != "" {
			return die(stderr, "--generate and --pk are mutually exclusive")
		}
		generated, err := crypto.GeneratePrivateKey()
		if err != nil {
			return die(stderr, "%v", err)
		}
		key = generated
	} else {
		cfg, err := config.LoadAndResolve("", config.Overrides{PrivateKey: pk})
		if err != nil {
			return die(stderr, "%v", err)
		}
		if cfg.PrivateKey == "" {
			return die(stderr, "no key to import: pass --pk, set PK, or use --generate")
		}
		parsed, err := crypto.ParsePrivateKeyHex(cfg.PrivateKey)
		if err != nil {
			return fail(stderr, err)
		}
		key = parsed
	}
	secret, err := passphrase.NewSource(passphrase.EnvVar, stderr).Get()
	if err != nil {
		return die(stderr, "%v", err)
	}
	if err := crypto.SaveToKeystore(out, key, secret); err != nil {
		return die(stderr, "%v", err)
	}
	fmt.Fprintf(stdout, "Wrote keystore for %s to %s\n", key.Address().Hex(), out)
	return 0
}
