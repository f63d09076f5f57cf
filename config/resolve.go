package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// NetworkMainnet and NetworkTestnet are the exchange network labels that
	// appear in signed withdrawal actions.
	NetworkMainnet = "Mainnet"
	NetworkTestnet = "Testnet"

	MainnetExchangeURL = "https://api.hyperliquid.xyz"
	TestnetExchangeURL = "https://api.hyperliquid-testnet.xyz"

	// ArbitrumOneChainID is the settlement chain and the default signature chain.
	ArbitrumOneChainID uint64 = 42161

	DefaultUSDCAddress   = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	DefaultBridgeAddress = "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"

	defaultWithdrawFee     = "1"
	defaultMinTransfer     = "5"
	defaultTolerance       = "0.98"
	defaultPollInterval    = 6 * time.Second
	defaultDepositTimeout  = 600 * time.Second
	defaultWithdrawTimeout = 900 * time.Second
	defaultReceiptTimeout  = 180 * time.Second
	defaultEnv             = "local"
	defaultLogLevel        = "info"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Overrides carries values supplied on the command line. Empty fields defer to
// the environment and the configuration file.
type Overrides struct {
	PrivateKey  string
	Destination string
	RPCURL      string
	Testnet     bool
	LogLevel    string
}

// Config is the fully resolved, immutable configuration handed to each
// command. Build it with Resolve and pass it by value.
type Config struct {
	Network          string
	Testnet          bool
	ExchangeURL      string
	RPCURL           string
	ChainID          uint64
	SignatureChainID uint64

	// PrivateKey is the raw hex key from flag, environment or file. Empty when
	// the key lives in KeystorePath.
	PrivateKey   string
	KeystorePath string

	// User is the exchange account expected to sign withdrawals. HasUser is
	// false when no source named one, in which case the signer is assumed.
	User    common.Address
	HasUser bool

	// Destination is the explicit withdrawal or send recipient, if any.
	Destination    common.Address
	HasDestination bool

	USDCAddress   common.Address
	BridgeAddress common.Address

	WithdrawFee decimal.Decimal
	MinTransfer decimal.Decimal
	Tolerance   decimal.Decimal

	PollInterval    time.Duration
	DepositTimeout  time.Duration
	WithdrawTimeout time.Duration
	ReceiptTimeout  time.Duration

	Env            string
	LogFile        string
	LogLevel       string
	PushgatewayURL string
}

// LoadAndResolve reads the optional configuration file and resolves it
// against the process environment.
func LoadAndResolve(path string, overrides Overrides) (Config, error) {
	file, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return Resolve(file, os.LookupEnv, overrides)
}

// Resolve layers command-line overrides, environment variables and the
// configuration file, in that order of precedence, over the built-in defaults.
func Resolve(file File, lookup LookupFunc, overrides Overrides) (Config, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	env := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
		return ""
	}

	applyDefaults(&file)

	cfg := Config{
		KeystorePath:    strings.TrimSpace(file.KeystorePath),
		PollInterval:    file.PollInterval.Duration,
		DepositTimeout:  file.DepositTimeout.Duration,
		WithdrawTimeout: file.WithdrawTimeout.Duration,
		ReceiptTimeout:  file.ReceiptTimeout.Duration,
		LogFile:         strings.TrimSpace(file.LogFile),
	}

	cfg.PrivateKey = firstNonEmpty(overrides.PrivateKey, env("PK", "PK_RECIPIENT_B", "PRIVATE_KEY"), file.SecretKey)
	cfg.RPCURL = firstNonEmpty(overrides.RPCURL, env("ARB_RPC", "ARBITRUM_ALCHEMY_MAINNET"), file.RPCURL)
	cfg.Env = firstNonEmpty(env("HLBRIDGE_ENV"), file.Env)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(overrides.LogLevel, env("HLBRIDGE_LOG_LEVEL"), file.LogLevel))
	cfg.PushgatewayURL = firstNonEmpty(env("PUSHGATEWAY_URL"), file.PushgatewayURL)

	if overrides.Testnet {
		cfg.Network = NetworkTestnet
	} else {
		cfg.Network = normaliseNetwork(firstNonEmpty(env("HL_NETWORK"), file.Network))
	}
	cfg.Testnet = cfg.Network == NetworkTestnet

	cfg.ExchangeURL = strings.TrimSpace(file.ExchangeURL)
	if cfg.ExchangeURL == "" {
		cfg.ExchangeURL = MainnetExchangeURL
		if cfg.Testnet {
			cfg.ExchangeURL = TestnetExchangeURL
		}
	}

	chainID, err := parseChainID("CHAIN_ID", env("CHAIN_ID"), file.ChainID)
	if err != nil {
		return Config{}, err
	}
	cfg.ChainID = chainID

	sigChainID, err := parseChainID("SIG_CHAIN_ID", env("SIG_CHAIN_ID"), file.SignatureChainID)
	if err != nil {
		return Config{}, err
	}
	if cfg.Testnet {
		if sigChainID, err = parseChainID("SIG_CHAIN_ID_TESTNET", env("SIG_CHAIN_ID_TESTNET"), sigChainID); err != nil {
			return Config{}, err
		}
	}
	cfg.SignatureChainID = sigChainID

	user, err := resolveUser(env("USER_ADDRESS"), env("USER"), file.AccountAddress)
	if err != nil {
		return Config{}, err
	}
	if user != (common.Address{}) {
		cfg.User = user
		cfg.HasUser = true
	}

	if raw := firstNonEmpty(overrides.Destination, env("WALLET_ADDRESS"), file.WalletAddress); raw != "" {
		dest, err := parseAddress("destination", raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Destination = dest
		cfg.HasDestination = true
	}

	if cfg.USDCAddress, err = parseAddress("usdc_address", file.USDCAddress); err != nil {
		return Config{}, err
	}
	if cfg.BridgeAddress, err = parseAddress("bridge_address", file.BridgeAddress); err != nil {
		return Config{}, err
	}

	if cfg.WithdrawFee, err = parseDecimal("withdraw_fee", file.WithdrawFee); err != nil {
		return Config{}, err
	}
	if cfg.MinTransfer, err = parseDecimal("min_transfer", file.MinTransfer); err != nil {
		return Config{}, err
	}
	if cfg.Tolerance, err = parseDecimal("tolerance", file.Tolerance); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(file *File) {
	if strings.TrimSpace(file.USDCAddress) == "" {
		file.USDCAddress = DefaultUSDCAddress
	}
	if strings.TrimSpace(file.BridgeAddress) == "" {
		file.BridgeAddress = DefaultBridgeAddress
	}
	if strings.TrimSpace(file.WithdrawFee) == "" {
		file.WithdrawFee = defaultWithdrawFee
	}
	if strings.TrimSpace(file.MinTransfer) == "" {
		file.MinTransfer = defaultMinTransfer
	}
	if strings.TrimSpace(file.Tolerance) == "" {
		file.Tolerance = defaultTolerance
	}
	if file.PollInterval.Duration <= 0 {
		file.PollInterval.Duration = defaultPollInterval
	}
	if file.DepositTimeout.Duration <= 0 {
		file.DepositTimeout.Duration = defaultDepositTimeout
	}
	if file.WithdrawTimeout.Duration <= 0 {
		file.WithdrawTimeout.Duration = defaultWithdrawTimeout
	}
	if file.ReceiptTimeout.Duration <= 0 {
		file.ReceiptTimeout.Duration = defaultReceiptTimeout
	}
	if strings.TrimSpace(file.Env) == "" {
		file.Env = defaultEnv
	}
	if strings.TrimSpace(file.LogLevel) == "" {
		file.LogLevel = defaultLogLevel
	}
}

func validate(cfg Config) error {
	if cfg.ChainID == 0 {
		return errors.New("chain_id must be positive")
	}
	if cfg.SignatureChainID == 0 {
		return errors.New("signature_chain_id must be positive")
	}
	if cfg.WithdrawFee.Sign() < 0 {
		return errors.New("withdraw_fee must not be negative")
	}
	if cfg.MinTransfer.Sign() < 0 {
		return errors.New("min_transfer must not be negative")
	}
	if cfg.Tolerance.Sign() <= 0 || cfg.Tolerance.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tolerance must be in (0, 1], got %s", cfg.Tolerance)
	}
	if cfg.USDCAddress == (common.Address{}) {
		return errors.New("usdc_address required")
	}
	if cfg.BridgeAddress == (common.Address{}) {
		return errors.New("bridge_address required")
	}
	return nil
}

func normaliseNetwork(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), NetworkTestnet) {
		return NetworkTestnet
	}
	return NetworkMainnet
}

// resolveUser prefers USER_ADDRESS, then USER, then the file. USER is only
// honoured when it holds an address because shells export it as the login
// name.
func resolveUser(userAddress, user, fileAddress string) (common.Address, error) {
	if userAddress != "" {
		return parseAddress("USER_ADDRESS", userAddress)
	}
	if user != "" && common.IsHexAddress(user) {
		return common.HexToAddress(user), nil
	}
	if strings.TrimSpace(fileAddress) != "" {
		return parseAddress("account_address", fileAddress)
	}
	return common.Address{}, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %q is not a number", field, raw)
	}
	return value, nil
}

func parseChainID(name, raw string, fallback uint64) (uint64, error) {
	if raw == "" {
		if fallback == 0 {
			return ArbitrumOneChainID, nil
		}
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a chain id", name, raw)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
