package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// UpdateSource is implemented by Client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error)
}

// Poller is the inbound ingestion loop. It keeps its offset across runs so a
// supervised restart resumes where the last run stopped.
type Poller struct {
	src     UpdateSource
	timeout time.Duration
	handle  func(ctx context.Context, u Update)
	log     *zap.SugaredLogger

	offset      int64
	dropPending bool
}

// NewPoller builds a poller handing every update to handle. Updates queued
// before the first run are skipped.
func NewPoller(src UpdateSource, timeout time.Duration, handle func(ctx context.Context, u Update), log *zap.SugaredLogger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{src: src, timeout: timeout, handle: handle, log: log, dropPending: true}
}

// Run polls until ctx is cancelled (returns nil) or a request fails
// (returns the error). ready is called after the first successful poll.
func (p *Poller) Run(ctx context.Context, ready func()) error {
	if p.dropPending {
		_, next, err := p.src.GetUpdates(ctx, -1, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if next < 0 {
			next = 0
		}
		p.offset = next
		p.dropPending = false
		p.log.Infow("skipped pending updates", "offset", next)
	}

	signalled := false
	for {
		updates, next, err := p.src.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !signalled {
			ready()
			signalled = true
		}
		p.offset = next
		for _, u := range updates {
			p.handle(ctx, u)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
