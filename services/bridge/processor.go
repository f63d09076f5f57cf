package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hlbridge/services/bridge/amount"
	"hlbridge/services/bridge/bridgeerr"
	"hlbridge/services/bridge/exchange"
	"hlbridge/services/bridge/reconcile"
	"hlbridge/services/bridge/typedauth"
	"hlbridge/services/bridge/wallet"
)

// ErrChainUnavailable is returned when a flow that needs the chain runs
// without an RPC endpoint.
var ErrChainUnavailable = errors.New("bridge: chain RPC not configured")

// fallbackSkew is subtracted from the submission time before querying ledger
// history so clock drift between hosts cannot hide the credit row.
const fallbackSkew = 5 * time.Second

// Exchange is the part of the exchange client the flows depend on.
type Exchange interface {
	Withdrawable(ctx context.Context, address string) (decimal.Decimal, error)
	SpotBalance(ctx context.Context, address, coin string) (decimal.Decimal, error)
	SumCollateralSince(ctx context.Context, address string, since time.Time) (decimal.Decimal, error)
	SubmitWithdrawal(ctx context.Context, auth typedauth.Authorization, sig typedauth.Signature) (exchange.ActionResponse, error)
	PerpState(ctx context.Context, address string) (exchange.PerpState, error)
	SpotState(ctx context.Context, address string) (exchange.SpotState, error)
	Mids(ctx context.Context) ([]exchange.Mid, error)
}

var _ Exchange = (*exchange.Client)(nil)

// Metrics records flow and reconciliation outcomes.
type Metrics interface {
	reconcile.Metrics
	RecordTransfer(direction, outcome string)
	RecordError(direction, reason string)
}

// Settings are the per-network constants every flow needs.
type Settings struct {
	Network          string
	SignatureChainID uint64
	ChainID          uint64
	USDC             common.Address
	Bridge           common.Address
	Policy           Policy
	PollInterval     time.Duration
	DepositTimeout   time.Duration
	WithdrawTimeout  time.Duration
	ReceiptTimeout   time.Duration
}

// Processor runs one transfer flow at a time against the configured
// gateways. Each call is independent and keeps no state between calls.
type Processor struct {
	settings Settings
	exchange Exchange
	chain    wallet.Gateway
	fees     FeeSource
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithExchange supplies the exchange client.
func WithExchange(ex Exchange) ProcessorOption {
	return func(p *Processor) { p.exchange = ex }
}

// WithChain supplies the chain gateway. Leave it unset when no RPC endpoint
// is configured.
func WithChain(chain wallet.Gateway) ProcessorOption {
	return func(p *Processor) { p.chain = chain }
}

// WithFeeSource overrides the static withdrawal fee.
func WithFeeSource(fees FeeSource) ProcessorOption {
	return func(p *Processor) { p.fees = fees }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithClock sets the function used to derive timestamps and nonces.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = clock }
}

// WithSleep sets the function the reconciler waits with between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ProcessorOption {
	return func(p *Processor) { p.sleep = sleep }
}

// NewProcessor constructs a processor for settings.
func NewProcessor(settings Settings, opts ...ProcessorOption) *Processor {
	if settings.Policy.MinTransfer.IsZero() && settings.Policy.Tolerance.IsZero() {
		settings.Policy = DefaultPolicy()
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = reconcile.DefaultInterval
	}
	if settings.DepositTimeout <= 0 {
		settings.DepositTimeout = reconcile.DepositTimeout
	}
	if settings.WithdrawTimeout <= 0 {
		settings.WithdrawTimeout = reconcile.WithdrawTimeout
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = wallet.DefaultReceiptTimeout
	}
	proc := &Processor{
		settings: settings,
		fees:     DefaultWithdrawFee,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(proc)
	}
	if proc.fees == nil {
		proc.fees = DefaultWithdrawFee
	}
	if proc.logger == nil {
		proc.logger = slog.Default()
	}
	if proc.now == nil {
		proc.now = time.Now
	}
	return proc
}

// Settings returns the resolved settings.
func (p *Processor) Settings() Settings { return p.settings }

func (p *Processor) reconciler(address common.Address, observers []reconcile.Observer, fallback reconcile.History, since time.Time, expected decimal.Decimal, timeout time.Duration) (*reconcile.Reconciler, error) {
	cfg := reconcile.Config{
		Address:       address.Hex(),
		Observers:     observers,
		Fallback:      fallback,
		FallbackSince: since,
		Expected:      expected,
		Tolerance:     p.settings.Policy.tolerance(),
		Interval:      p.settings.PollInterval,
		Timeout:       timeout,
		Now:           p.now,
		Sleep:         p.sleep,
		Logger:        p.logger,
	}
	if p.metrics != nil {
		cfg.Metrics = p.metrics
	}
	return reconcile.New(cfg)
}

func (p *Processor) onChainObserver(owner common.Address) reconcile.Observer {
	return reconcile.ObserverFunc{Kind: reconcile.OnChain, Fn: func(ctx context.Context) (decimal.Decimal, error) {
		raw, decimals, err := p.chain.ReadBalance(ctx, p.settings.USDC, owner)
		if err != nil {
			return decimal.Zero, err
		}
		return amount.FromFixedPoint(raw, decimals), nil
	}}
}

// checkChainID warns when the RPC endpoint serves a different chain than the
// one configured. The transfer still proceeds.
func (p *Processor) checkChainID(ctx context.Context) {
	if p.settings.ChainID == 0 {
		return
	}
	id, err := p.chain.ChainID(ctx)
	if err != nil {
		p.logger.Warn("bridge: chain id lookup failed", slog.Any("error", err))
		return
	}
	if !id.IsUint64() || id.Uint64() != p.settings.ChainID {
		p.logger.Warn("bridge: connected to unexpected chain",
			slog.String("chain_id", id.String()),
			slog.Uint64("expected", p.settings.ChainID))
	}
}

func (p *Processor) fail(span trace.Span, direction Direction, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if p.metrics != nil {
		p.metrics.RecordError(string(direction), bridgeerr.Reason(err))
	}
	return err
}

// rejectedOutcome classifies a pre-flight rejection. Other errors leave the
// outcome Unknown.
func rejectedOutcome(err error) reconcile.Outcome {
	switch {
	case errors.Is(err, bridgeerr.ErrInsufficientSourceFunds):
		return reconcile.Outcome{Kind: reconcile.InsufficientSourceFunds}
	case errors.Is(err, bridgeerr.ErrAmountTooSmall):
		return reconcile.Outcome{Kind: reconcile.AmountTooSmall}
	}
	return reconcile.Outcome{}
}

func (p *Processor) record(direction Direction, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordTransfer(string(direction), outcome)
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("hlbridge/bridge").Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}
