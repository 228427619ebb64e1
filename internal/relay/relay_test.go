package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/telegram"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

type sentItem struct {
	chatID int64
	text   string
	photo  telegram.InputPhoto
}

type stubSender struct {
	sent     []sentItem
	failText bool
	panics   bool
}

func (s *stubSender) SendMessage(_ context.Context, chatID int64, text string, _ *telegram.InlineKeyboardMarkup) (int64, error) {
	if s.panics {
		panic("transport exploded")
	}
	if s.failText {
		return 0, errors.New("Forbidden: bot was blocked by the user")
	}
	s.sent = append(s.sent, sentItem{chatID: chatID, text: text})
	return int64(len(s.sent)), nil
}

func (s *stubSender) SendPhoto(_ context.Context, chatID int64, p telegram.InputPhoto) (int64, error) {
	s.sent = append(s.sent, sentItem{chatID: chatID, photo: p})
	return int64(len(s.sent)), nil
}

type stubDedup struct {
	claims   map[string]bool
	released []string
	err      error
}

func (d *stubDedup) Claim(_ context.Context, userID int64, field, eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	k := fmt.Sprintf("%d|%s|%s", userID, field, eventID)
	if d.claims[k] {
		return false, nil
	}
	d.claims[k] = true
	return true, nil
}

func (d *stubDedup) Release(_ context.Context, userID int64, field, eventID string) error {
	k := fmt.Sprintf("%d|%s|%s", userID, field, eventID)
	delete(d.claims, k)
	d.released = append(d.released, k)
	return nil
}

func newRelay(s *stubSender, d Deduper) *Relay {
	return New(s, d, utilities.NewTraceIDs(1), zap.NewNop().Sugar())
}

func TestHandle_UnchangedEventSendsNothing(t *testing.T) {
	s := &stubSender{}
	payload := `{"old":{"tg_user_id":7,"notif_text":"ready","product_photo_path":"p","receipt_photo_path":null},
	             "new":{"tg_user_id":7,"notif_text":"ready","product_photo_path":"p","receipt_photo_path":null}}`
	if n := newRelay(s, nil).Handle(context.Background(), payload); n != 0 || len(s.sent) != 0 {
		t.Fatalf("expected no deliveries, got %d %+v", n, s.sent)
	}
}

func TestHandle_ReceiptOnlyChange(t *testing.T) {
	s := &stubSender{}
	payload := `{"old":{"tg_user_id":7,"notif_text":"ready","receipt_photo_path":null},
	             "new":{"tg_user_id":7,"notif_text":"ready","receipt_photo_path":"AgACAgIAAxkBAAIB"}}`
	n := newRelay(s, nil).Handle(context.Background(), payload)
	if n != 1 || len(s.sent) != 1 {
		t.Fatalf("expected one delivery, got %d %+v", n, s.sent)
	}
	if s.sent[0].chatID != 7 || s.sent[0].photo.Ref != "AgACAgIAAxkBAAIB" || s.sent[0].photo.Path != "" {
		t.Fatalf("unexpected delivery %+v", s.sent[0])
	}
}

func TestHandle_MultipleFieldsInOrder(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "product.jpg")
	if err := os.WriteFile(local, []byte("img"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := &stubSender{}
	payload := `{"old":{"tg_user_id":"8"},
	             "new":{"tg_user_id":"8","notif_text":"shipped","product_photo_path":"` + local + `","receipt_photo_path":"https://cdn.example.com/r.png"}}`
	n := newRelay(s, nil).Handle(context.Background(), payload)
	if n != 3 {
		t.Fatalf("expected three deliveries, got %d", n)
	}
	if s.sent[0].text != "shipped" {
		t.Fatalf("text must go first: %+v", s.sent)
	}
	if s.sent[1].photo.Path != local {
		t.Fatalf("local file must be uploaded: %+v", s.sent[1])
	}
	if s.sent[2].photo.Ref != "https://cdn.example.com/r.png" {
		t.Fatalf("remote reference must pass through: %+v", s.sent[2])
	}
}

func TestHandle_DirectoryIsNotUploaded(t *testing.T) {
	dir := t.TempDir()
	s := &stubSender{}
	payload := `{"old":{},"new":{"tg_user_id":9,"product_photo_path":"` + dir + `"}}`
	newRelay(s, nil).Handle(context.Background(), payload)
	if len(s.sent) != 1 || s.sent[0].photo.Ref != dir {
		t.Fatalf("directory must be passed as a reference: %+v", s.sent)
	}
}

func TestHandle_FallsBackToOldUserID(t *testing.T) {
	s := &stubSender{}
	payload := `{"old":{"tg_user_id":11},"new":{"notif_text":"hi"}}`
	newRelay(s, nil).Handle(context.Background(), payload)
	if len(s.sent) != 1 || s.sent[0].chatID != 11 {
		t.Fatalf("unexpected deliveries %+v", s.sent)
	}
}

func TestHandle_BadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":   `{"old":`,
		"no images":  `{}`,
		"no user id": `{"old":{},"new":{"notif_text":"hi"}}`,
		"bad user":   `{"new":{"tg_user_id":"abc","notif_text":"hi"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			s := &stubSender{}
			if n := newRelay(s, nil).Handle(context.Background(), payload); n != 0 || len(s.sent) != 0 {
				t.Fatalf("expected drop, got %d", n)
			}
		})
	}
}

func TestHandle_SendFailureDoesNotStopOtherFields(t *testing.T) {
	s := &stubSender{failText: true}
	payload := `{"old":null,"new":{"tg_user_id":3,"notif_text":"hello","receipt_photo_path":"file-id"}}`
	if n := newRelay(s, nil).Handle(context.Background(), payload); n != 1 {
		t.Fatalf("expected the photo to be sent, got %d", n)
	}
	if len(s.sent) != 1 || s.sent[0].photo.Ref != "file-id" {
		t.Fatalf("unexpected deliveries %+v", s.sent)
	}
}

func TestHandle_RecoversPanic(t *testing.T) {
	s := &stubSender{panics: true}
	payload := `{"new":{"tg_user_id":3,"notif_text":"hello"}}`
	if n := newRelay(s, nil).Handle(context.Background(), payload); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestHandle_Dedup(t *testing.T) {
	s := &stubSender{}
	d := &stubDedup{claims: map[string]bool{}}
	r := newRelay(s, d)
	payload := `{"txid":100,"old":{"tg_user_id":5},"new":{"tg_user_id":5,"notif_text":"paid"}}`

	if n := r.Handle(context.Background(), payload); n != 1 {
		t.Fatalf("first delivery expected, got %d", n)
	}
	if n := r.Handle(context.Background(), payload); n != 0 {
		t.Fatalf("re-delivered notification must be skipped, got %d", n)
	}

	d.err = errors.New("redis: connection refused")
	if n := r.Handle(context.Background(), payload); n != 1 {
		t.Fatalf("dedup failure must fall back to delivering, got %d", n)
	}
}

func TestHandle_ValueReturningToEarlierIsDelivered(t *testing.T) {
	s := &stubSender{}
	r := newRelay(s, &stubDedup{claims: map[string]bool{}})
	payloads := []string{
		`{"txid":1,"old":{"tg_user_id":5,"notif_text":null},"new":{"tg_user_id":5,"notif_text":"ready"}}`,
		`{"txid":2,"old":{"tg_user_id":5,"notif_text":"ready"},"new":{"tg_user_id":5,"notif_text":"delayed"}}`,
		`{"txid":3,"old":{"tg_user_id":5,"notif_text":"delayed"},"new":{"tg_user_id":5,"notif_text":"ready"}}`,
	}
	for i, p := range payloads {
		if n := r.Handle(context.Background(), p); n != 1 {
			t.Fatalf("change %d must be delivered, got %d", i, n)
		}
	}
	if len(s.sent) != 3 || s.sent[2].text != "ready" {
		t.Fatalf("unexpected deliveries %+v", s.sent)
	}
}

func TestHandle_FailedSendReleasesClaim(t *testing.T) {
	s := &stubSender{failText: true}
	d := &stubDedup{claims: map[string]bool{}}
	r := newRelay(s, d)
	payload := `{"txid":7,"old":{"tg_user_id":5},"new":{"tg_user_id":5,"notif_text":"paid"}}`

	if n := r.Handle(context.Background(), payload); n != 0 {
		t.Fatalf("send failure must not count, got %d", n)
	}
	if len(d.released) != 1 || len(d.claims) != 0 {
		t.Fatalf("failed send must release its claim: released=%v claims=%v", d.released, d.claims)
	}

	s.failText = false
	if n := r.Handle(context.Background(), payload); n != 1 {
		t.Fatalf("retry after a failed send must deliver, got %d", n)
	}
}

func TestParseEvent_IDFromPayload(t *testing.T) {
	a, err := ParseEvent(`{"txid":1,"new":{"tg_user_id":5,"notif_text":"x"}}`)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ParseEvent(`{"txid":2,"new":{"tg_user_id":5,"notif_text":"x"}}`)
	c, _ := ParseEvent(`{"txid":1,"new":{"tg_user_id":5,"notif_text":"x"}}`)
	if a.ID == "" || a.ID == b.ID || a.ID != c.ID {
		t.Fatalf("ids must follow the payload: %q %q %q", a.ID, b.ID, c.ID)
	}
	if d := a.Deliveries(5); len(d) != 1 || d[0].EventID != a.ID {
		t.Fatalf("deliveries must carry the event id: %+v", d)
	}
}

func TestRowString(t *testing.T) {
	ev, err := ParseEvent(`{"new":{"a":12345678901234,"b":true,"c":null,"d":"x"}}`)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "12345678901234", "b": "true", "c": "", "d": "x", "missing": ""}
	for k, w := range want {
		if got := ev.New.String(k); got != w {
			t.Fatalf("%s: want %q, got %q", k, w, got)
		}
	}
}
