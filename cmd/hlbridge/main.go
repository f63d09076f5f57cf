// Command hlbridge moves USDC between the Hyperliquid exchange and Arbitrum
// and waits until the transfer is credited on the receiving ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"hlbridge/services/bridge/bridgeerr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "withdraw":
		return runWithdrawCommand(ctx, args[1:], stdout, stderr)
	case "deposit":
		return runDepositCommand(ctx, args[1:], stdout, stderr)
	case "send":
		return runSendCommand(ctx, args[1:], stdout, stderr)
	case "summary":
		return runSummaryCommand(ctx, args[1:], stdout, stderr)
	case "keystore-import":
		return runKeystoreImportCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: hlbridge <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  withdraw <amount> [--pk 0x...] [--dest 0x...] [--config path] [--no-wait] [--testnet]")
	fmt.Fprintln(w, "  deposit <amount> [--pk 0x...] [--config path] [--no-wait] [--testnet]")
	fmt.Fprintln(w, "  send <amount> [--pk 0x...] [--to 0x...] [--config path]")
	fmt.Fprintln(w, "  summary [--user 0x...] [--mids n] [--config path] [--testnet]")
	fmt.Fprintln(w, "  keystore-import --out path [--pk 0x... | --generate]")
}

// die prints an operator-facing failure and returns the exit code.
func die(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}

// fail reports err. A timed-out wait gets its own wording because the
// transfer itself went through.
func fail(stderr io.Writer, err error) int {
	if errors.Is(err, bridgeerr.ErrTimedOut) {
		fmt.Fprintf(stderr, "Transfer submitted, credit not observed: %v\nCheck the destination ledger manually before retrying.\n", err)
		return 1
	}
	return die(stderr, "%v", err)
}
