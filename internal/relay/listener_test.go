package relay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type nopHandler struct{}

func (nopHandler) Handle(context.Context, string) int { return 0 }

const unreachableDSN = "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1"

func runListener(ctx context.Context, t *testing.T) (bool, error) {
	t.Helper()
	l := NewListener(unreachableDSN, "client_update", nopHandler{}, zap.NewNop().Sugar())

	readyCalled := false
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, func() { readyCalled = true }) }()

	select {
	case err := <-done:
		return readyCalled, err
	case <-time.After(5 * time.Second):
		t.Fatal("Run still blocked while the database is unreachable")
		return false, nil
	}
}

func TestListener_UnreachableDatabaseFails(t *testing.T) {
	ready, err := runListener(context.Background(), t)
	if err == nil {
		t.Fatal("expected a connection error so the supervisor can retry")
	}
	if ready {
		t.Fatal("ready must not be signalled without a connection")
	}
}

func TestListener_ReturnsOnCancelWhileConnecting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ready, _ := runListener(ctx, t)
	if ready {
		t.Fatal("ready must not be signalled without a connection")
	}
}
