package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pingInterval = 90 * time.Second

// Handler consumes one NOTIFY payload. Relay implements it.
type Handler interface {
	Handle(ctx context.Context, payload string) int
}

// Listener subscribes to a NOTIFY channel and hands payloads to a Handler in
// arrival order. One Run is one connection; a lost connection ends the run
// with an error so the caller can re-establish it.
type Listener struct {
	dsn     string
	channel string
	handler Handler
	log     *zap.SugaredLogger
}

func NewListener(dsn, channel string, handler Handler, log *zap.SugaredLogger) *Listener {
	return &Listener{dsn: dsn, channel: channel, handler: handler, log: log}
}

// Run listens until ctx is cancelled (returns nil) or the connection fails.
// ready is called once LISTEN succeeded.
func (l *Listener) Run(ctx context.Context, ready func()) error {
	connErr := make(chan error, 1)
	report := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			if err == nil {
				err = errors.New("connection lost")
			}
			select {
			case connErr <- err:
			default:
			}
		}
	}

	ln := pq.NewListener(l.dsn, time.Second, time.Minute, report)
	defer ln.Close()

	// Listen blocks until pq has a connection and does not watch ctx.
	listenErr := make(chan error, 1)
	go func() { listenErr <- ln.Listen(l.channel) }()
	select {
	case <-ctx.Done():
		_ = ln.Close()
		return nil
	case err := <-connErr:
		_ = ln.Close()
		return fmt.Errorf("listener %s: %w", l.channel, err)
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen %s: %w", l.channel, err)
		}
	}

	// errors from attempts that preceded the successful connection are stale
	select {
	case <-connErr:
	default:
	}
	l.log.Infow("listening for changes", "channel", l.channel)
	ready()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-connErr:
			return fmt.Errorf("listener %s: %w", l.channel, err)
		case n, ok := <-ln.Notify:
			if !ok {
				return errors.New("listener closed")
			}
			// nil is sent after pq re-established the connection; notifications
			// in between may be lost.
			if n == nil {
				l.log.Warnw("listener reconnected, changes may have been missed", "channel", l.channel)
				continue
			}
			l.handler.Handle(ctx, n.Extra)
		case <-ticker.C:
			if err := ln.Ping(); err != nil {
				return fmt.Errorf("listener ping: %w", err)
			}
		}
	}
}
