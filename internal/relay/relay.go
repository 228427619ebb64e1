// Package relay forwards backend changes of client_info rows to the owning
// Telegram user. Each NOTIFY payload carries the old and new row images; every
// watched column that changed to a non-empty value yields one delivery.
package relay

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/telegram"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

// Sender is implemented by telegram.Client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (int64, error)
	SendPhoto(ctx context.Context, chatID int64, photo telegram.InputPhoto) (int64, error)
}

// Deduper claims a delivery of one field of one event; false means another
// listener already holds the claim. A claim is released when the send fails.
type Deduper interface {
	Claim(ctx context.Context, userID int64, field, eventID string) (bool, error)
	Release(ctx context.Context, userID int64, field, eventID string) error
}

type Relay struct {
	sender Sender
	dedup  Deduper
	ids    *utilities.TraceIDs
	log    *zap.SugaredLogger
}

// New builds a relay. dedup may be nil.
func New(sender Sender, dedup Deduper, ids *utilities.TraceIDs, log *zap.SugaredLogger) *Relay {
	return &Relay{sender: sender, dedup: dedup, ids: ids, log: log}
}

// Handle processes one NOTIFY payload and returns the number of deliveries
// sent. It never fails: problems are logged and counted.
func (r *Relay) Handle(ctx context.Context, payload string) (sent int) {
	log := r.log.With("trace_id", r.ids.Next())
	defer func() {
		if p := recover(); p != nil {
			metrics.RelayEventsTotal.WithLabelValues("panic").Inc()
			log.Errorw("relay panicked", "panic", p, "stack", string(debug.Stack()))
		}
	}()

	ev, err := ParseEvent(payload)
	if err != nil {
		metrics.RelayEventsTotal.WithLabelValues("parse_error").Inc()
		log.Warnw("drop change event", "err", err, "payload", payload)
		return 0
	}
	userID, err := ev.UserID()
	if err != nil {
		metrics.RelayEventsTotal.WithLabelValues("no_user").Inc()
		log.Warnw("drop change event", "err", err, "payload", payload)
		return 0
	}

	deliveries := ev.Deliveries(userID)
	log.Debugw("change event", "user_id", userID, "deliveries", len(deliveries))
	for _, d := range deliveries {
		if r.deliver(ctx, log, d) {
			sent++
		}
	}
	metrics.RelayEventsTotal.WithLabelValues("processed").Inc()
	return sent
}

func (r *Relay) deliver(ctx context.Context, log *zap.SugaredLogger, d Delivery) bool {
	log = log.With("user_id", d.UserID, "field", d.Field)

	claimed := false
	if r.dedup != nil {
		ok, err := r.dedup.Claim(ctx, d.UserID, d.Field, d.EventID)
		switch {
		case err != nil:
			log.Warnw("dedup unavailable, delivering anyway", "err", err)
		case !ok:
			metrics.RelayDeliveriesTotal.WithLabelValues(d.Field, "duplicate").Inc()
			log.Infow("skip duplicate delivery", "event_id", d.EventID)
			return false
		default:
			claimed = true
		}
	}

	if err := r.send(ctx, d); err != nil {
		metrics.RelayDeliveriesTotal.WithLabelValues(d.Field, "failed").Inc()
		log.Errorw("relay delivery failed", "err", err)
		if claimed {
			if rerr := r.dedup.Release(ctx, d.UserID, d.Field, d.EventID); rerr != nil {
				log.Warnw("dedup release failed", "err", rerr)
			}
		}
		return false
	}
	metrics.RelayDeliveriesTotal.WithLabelValues(d.Field, "sent").Inc()
	log.Infow("relay delivery sent")
	return true
}

func (r *Relay) send(ctx context.Context, d Delivery) error {
	if !d.IsPhoto() {
		_, err := r.sender.SendMessage(ctx, d.UserID, d.Value, nil)
		return err
	}
	photo := telegram.InputPhoto{Ref: d.Value}
	if isLocalFile(d.Value) {
		photo = telegram.InputPhoto{Path: d.Value}
	}
	if _, err := r.sender.SendPhoto(ctx, d.UserID, photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// isLocalFile reports whether ref names an existing regular file.
func isLocalFile(ref string) bool {
	fi, err := os.Stat(ref)
	return err == nil && fi.Mode().IsRegular()
}
