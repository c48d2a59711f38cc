package app

import (
	"context"

	"golang.org/x/time/rate"

	kit "tallybot/internal/transport"
	logx "tallybot/pkg/logx"
)

// replySink throttles outbound replies so a burst of counted draws cannot
// trip Telegram's per-chat rate limits.
type replySink struct {
	adapter kit.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func newReplySink(adapter kit.Adapter, perSec int, log logx.Logger) *replySink {
	if perSec < 1 {
		perSec = 1
	}
	return &replySink{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		log:     log,
	}
}

func (r *replySink) setRate(perSec int) {
	if perSec < 1 {
		perSec = 1
	}
	r.limiter.SetLimit(rate.Limit(perSec))
	r.limiter.SetBurst(perSec)
}

func (r *replySink) Reply(ctx context.Context, channel int64, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: channel}, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
	return err
}
