package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"hlbridge/cmd/internal/passphrase"
	"hlbridge/config"
	"hlbridge/crypto"
	"hlbridge/observability"
	"hlbridge/observability/logging"
	telemetry "hlbridge/observability/otel"
	"hlbridge/services/bridge"
	"hlbridge/services/bridge/exchange"
	"hlbridge/services/bridge/wallet"
)

const serviceName = "hlbridge"

// commonFlags are accepted by every transfer command.
type commonFlags struct {
	configPath string
	privateKey string
	testnet    bool
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet, withKey bool) {
	fs.StringVar(&c.configPath, "config", "", "path to a YAML, JSON or TOML config file")
	fs.BoolVar(&c.testnet, "testnet", false, "use the exchange testnet")
	fs.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	if withKey {
		fs.StringVar(&c.privateKey, "pk", "", "signing key as 0x followed by 64 hex characters")
	}
}

func (c *commonFlags) overrides() config.Overrides {
	return config.Overrides{
		PrivateKey: c.privateKey,
		Testnet:    c.testnet,
		LogLevel:   c.logLevel,
	}
}

// parseWithAmount parses flags that may appear before or after the single
// positional amount argument. fallback is used when no amount is given.
func parseWithAmount(fs *flag.FlagSet, args []string, fallback string) (string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
	if len(positional) == 0 && strings.TrimSpace(fallback) != "" {
		return strings.TrimSpace(fallback), nil
	}
	if len(positional) != 1 {
		return "", fmt.Errorf("expected exactly one amount argument, got %d", len(positional))
	}
	return positional[0], nil
}

// runtime holds the per-invocation logger, telemetry and gateways.
type runtime struct {
	command  string
	cfg      config.Config
	runID    string
	logger   *slog.Logger
	metrics  *observability.BridgeMetrics
	stderr   io.Writer
	shutdown []func(context.Context) error
}

func newRuntime(ctx context.Context, command string, flags commonFlags, overrides config.Overrides, stderr io.Writer) (*runtime, error) {
	cfg, err := config.LoadAndResolve(flags.configPath, overrides)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		command: command,
		cfg:     cfg,
		runID:   uuid.NewString(),
		metrics: observability.Bridge(),
		stderr:  stderr,
	}
	logger, closer := logging.Setup(serviceName, cfg.Env, logging.Options{
		Writer: stderr,
		File:   cfg.LogFile,
		Level:  logging.ParseLevel(cfg.LogLevel),
		RunID:  rt.runID,
	})
	rt.logger = logger.With(slog.String("command", command))
	rt.shutdown = append(rt.shutdown, func(context.Context) error { return closer.Close() })
	rt.logger.Debug("config resolved",
		slog.String("network", cfg.Network),
		slog.String("exchange_url", cfg.ExchangeURL),
		slog.Bool("rpc_configured", cfg.RPCURL != ""),
		slog.Uint64("signature_chain_id", cfg.SignatureChainID),
		logging.MaskField("secret_key", cfg.PrivateKey),
		slog.String("keystore_path", cfg.KeystorePath))

	otelShutdown, err := telemetry.Init(ctx, telemetry.FromEnv(serviceName, cfg.Env, rt.runID))
	if err != nil {
		rt.logger.Warn("telemetry disabled", slog.Any("error", err))
	} else {
		rt.shutdown = append(rt.shutdown, otelShutdown)
	}
	rt.shutdown = append(rt.shutdown, func(ctx context.Context) error {
		return observability.Push(ctx, cfg.PushgatewayURL, serviceName, map[string]string{
			"command": command,
			"run_id":  rt.runID,
		})
	})
	return rt, nil
}

// close flushes telemetry and metrics, then the log file, in reverse order of
// registration.
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(rt.shutdown) - 1; i >= 0; i-- {
		if err := rt.shutdown[i](ctx); err != nil {
			fmt.Fprintf(rt.stderr, "Warning: shutdown: %v\n", err)
		}
	}
}

func (rt *runtime) loadKey() (*crypto.PrivateKey, error) {
	source := passphrase.NewSource(passphrase.EnvVar, rt.stderr)
	return crypto.LoadKey(rt.cfg.PrivateKey, rt.cfg.KeystorePath, source.Get)
}

func (rt *runtime) exchangeClient() *exchange.Client {
	return exchange.NewClient(exchange.Config{
		BaseURL:        rt.cfg.ExchangeURL,
		ObserveRequest: rt.metrics.ObserveGateway,
	})
}

// processor builds the flow processor. The chain gateway is attached only
// when an RPC endpoint is configured.
func (rt *runtime) processor() (*bridge.Processor, error) {
	cfg := rt.cfg
	opts := []bridge.ProcessorOption{
		bridge.WithExchange(rt.exchangeClient()),
		bridge.WithMetrics(rt.metrics),
		bridge.WithLogger(rt.logger),
		bridge.WithFeeSource(bridge.StaticFee(cfg.WithdrawFee)),
	}
	if cfg.RPCURL != "" {
		client, err := wallet.DialEVMClient(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		rt.shutdown = append(rt.shutdown, func(context.Context) error {
			client.Close()
			return nil
		})
		evm, err := wallet.NewEVM(client, wallet.EVMConfig{ChainID: new(big.Int).SetUint64(cfg.ChainID)})
		if err != nil {
			return nil, err
		}
		opts = append(opts, bridge.WithChain(evm))
	}
	settings := bridge.Settings{
		Network:          cfg.Network,
		SignatureChainID: cfg.SignatureChainID,
		ChainID:          cfg.ChainID,
		USDC:             cfg.USDCAddress,
		Bridge:           cfg.BridgeAddress,
		Policy:           bridge.Policy{MinTransfer: cfg.MinTransfer, Tolerance: cfg.Tolerance},
		PollInterval:     cfg.PollInterval,
		DepositTimeout:   cfg.DepositTimeout,
		WithdrawTimeout:  cfg.WithdrawTimeout,
		ReceiptTimeout:   cfg.ReceiptTimeout,
	}
	return bridge.NewProcessor(settings, opts...), nil
}
