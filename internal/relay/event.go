package relay

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Watched columns in delivery order.
const (
	FieldNotifText    = "notif_text"
	FieldProductPhoto = "product_photo_path"
	FieldReceiptPhoto = "receipt_photo_path"
)

var WatchedFields = []string{FieldNotifText, FieldProductPhoto, FieldReceiptPhoto}

var (
	ErrMalformed = errors.New("malformed change event")
	ErrNoUser    = errors.New("change event has no user id")
)

// Row is one row image of client_info as published by the trigger.
type Row map[string]any

// Event is a decoded NOTIFY payload. ID is the sha1 of the raw payload; the
// trigger stamps every payload with its transaction id and time, so two
// changes never share an ID while a re-delivered notification does.
type Event struct {
	ID  string `json:"-"`
	Old Row    `json:"old"`
	New Row    `json:"new"`
}

// Delivery is one changed field to forward to UserID.
type Delivery struct {
	EventID string
	UserID  int64
	Field   string
	Value   string
}

// IsPhoto reports whether the delivery carries a photo reference.
func (d Delivery) IsPhoto() bool { return d.Field != FieldNotifText }

// ParseEvent decodes a payload of the form {"old": {...}, "new": {...}}.
// Extra top-level keys such as txid are ignored.
// Either image may be null or absent.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Old == nil && ev.New == nil {
		return Event{}, fmt.Errorf("%w: no row images", ErrMalformed)
	}
	sum := sha1.Sum([]byte(payload))
	ev.ID = hex.EncodeToString(sum[:])
	return ev, nil
}

// UserID resolves the owner from the new image, then the old one.
func (e Event) UserID() (int64, error) {
	for _, row := range []Row{e.New, e.Old} {
		if id, ok := row.intValue("tg_user_id"); ok {
			return id, nil
		}
	}
	return 0, ErrNoUser
}

// Deliveries returns one delivery per watched field whose new value is
// non-empty and differs from the old value. A missing old value counts as
// empty.
func (e Event) Deliveries(userID int64) []Delivery {
	var out []Delivery
	for _, f := range WatchedFields {
		nv := e.New.String(f)
		if nv == "" || nv == e.Old.String(f) {
			continue
		}
		out = append(out, Delivery{EventID: e.ID, UserID: userID, Field: f, Value: nv})
	}
	return out
}

// String returns the column as text, "" when absent or null.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(bytes.TrimSpace(b))
	}
}

func (r Row) intValue(key string) (int64, bool) {
	switch t := r[key].(type) {
	case json.Number:
		id, err := t.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return id, err == nil
	}
	return 0, false
}
