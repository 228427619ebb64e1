// Package supervisor keeps long-running loops alive: a failed or panicking
// task is restarted after an exponential backoff until the context ends.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/metrics"
)

// Task is one run of a supervised loop. It calls ready once it is
// established (connected, subscribed); a later failure then restarts with
// the initial delay. Returning nil ends supervision.
type Task func(ctx context.Context, ready func()) error

type Supervisor struct {
	log     *zap.SugaredLogger
	initial time.Duration
	max     time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		log:     log,
		initial: DefaultInitialDelay,
		max:     DefaultMaxDelay,
		sleep:   sleepContext,
	}
}

// Run executes task until it returns nil or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, name string, task Task) {
	b := &Backoff{Initial: s.initial, Max: s.max}
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runOnce(ctx, task, b.Reset)
		if err == nil || ctx.Err() != nil {
			s.log.Infow("supervised task stopped", "task", name)
			return
		}

		delay := b.Next()
		metrics.SupervisorRestartsTotal.WithLabelValues(name).Inc()
		s.log.Warnw("supervised task failed, restarting", "task", name, "err", err, "retry_in", delay.String())
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, task Task, ready func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("supervised task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx, ready)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
