package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// Event types emitted by the resolution pipeline. Operators whitelist these
// in config to choose what reaches their channels.
const (
	EventResolved    = "resolution.resolved"
	EventFailed      = "resolution.failed"
	EventGasDeferred = "resolution.gas_deferred"
)

// ResolutionSucceeded announces a confirmed on-chain resolution.
func (n *Notifier) ResolutionSucceeded(ctx context.Context, res domain.ResolutionResult) {
	outcome := "NO"
	if res.Outcome {
		outcome = "YES"
	}
	title := fmt.Sprintf("Market resolved %s", outcome)
	message := fmt.Sprintf(
		"market: %s\nconfidence: %d/10000\nevidence: %s\ntx: %s\ngas used: %d\nmodel spend: $%s\ntook: %s",
		res.MarketID, res.Confidence, res.EvidenceCID, res.TxHash,
		res.GasUsed, res.CostUSD.StringFixed(4), res.Duration.Round(time.Millisecond),
	)
	_ = n.Notify(ctx, EventResolved, title, message)
}

// ResolutionFailed announces a terminal pipeline failure. A gas deferral gets
// its own event type since it is routine rather than actionable.
func (n *Notifier) ResolutionFailed(ctx context.Context, marketID string, err error) {
	event := EventFailed
	title := "Resolution failed"
	if kind := domain.ErrorKind(err); kind == "gas_too_high" {
		event = EventGasDeferred
		title = "Resolution deferred: gas above ceiling"
	}
	message := fmt.Sprintf("market: %s\nerror: %v", marketID, err)
	_ = n.Notify(ctx, event, title, message)
}
