package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"hlbridge/services/bridge/exchange"
)

// Summary is a read-only view of one exchange account.
type Summary struct {
	User common.Address
	Perp exchange.PerpState
	Spot exchange.SpotState
	Mids []exchange.Mid
}

// Summary reads the perp and spot accounts of user. Up to midsLimit mid
// prices are attached as enrichment; a failed mids lookup is logged and
// leaves Mids empty.
func (p *Processor) Summary(ctx context.Context, user common.Address, midsLimit int) (Summary, error) {
	ctx, span := startSpan(ctx, "bridge.Summary")
	defer span.End()

	out := Summary{User: user}
	if p.exchange == nil {
		return out, fmt.Errorf("bridge: exchange client required")
	}
	if user == (common.Address{}) {
		return out, fmt.Errorf("bridge: user address required")
	}
	perp, err := p.exchange.PerpState(ctx, user.Hex())
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	out.Perp = perp
	spot, err := p.exchange.SpotState(ctx, user.Hex())
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	out.Spot = spot

	if midsLimit <= 0 {
		return out, nil
	}
	mids, err := p.exchange.Mids(ctx)
	if err != nil {
		p.logger.Warn("summary: mids unavailable", slog.Any("error", err))
		return out, nil
	}
	if len(mids) > midsLimit {
		mids = mids[:midsLimit]
	}
	out.Mids = mids
	return out, nil
}
