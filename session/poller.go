package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StateSource answers the two background queries a poll tick issues.
type StateSource interface {
	State(ctx context.Context, host string) (*DeviceState, error)
	NowPlaying(ctx context.Context, host string) (*NowPlaying, error)
}

// Poller refreshes the session's device snapshots at a fixed interval.
// Its calls are background calls: failures are logged at debug level only
// and otherwise feed an idle update.
type Poller struct {
	session  *Session
	source   StateSource
	interval time.Duration
	log      *zap.Logger
}

// NewPoller creates a poller. A non-positive interval defaults to 5s.
func NewPoller(s *Session, source StateSource, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		session:  s,
		source:   source,
		interval: interval,
		log:      logger,
	}
}

// Run ticks until the context is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one poll: device state and now-playing, then one
// queue-advance evaluation. A no-op while no device is selected.
func (p *Poller) Tick(ctx context.Context) {
	host := p.session.DeviceHost()
	if host == "" {
		return
	}

	state, err := p.source.State(ctx, host)
	if err != nil {
		p.log.Debug("background state poll failed", zap.String("host", host), zap.Error(err))
		state = nil
	}

	now, err := p.source.NowPlaying(ctx, host)
	if err != nil {
		p.log.Debug("background now-playing poll failed", zap.String("host", host), zap.Error(err))
		now = nil
	}

	p.session.ApplyPoll(ctx, state, now)
}
