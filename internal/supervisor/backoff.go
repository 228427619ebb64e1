package supervisor

import "time"

const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 60 * time.Second
)

// Backoff yields doubling delays starting at Initial and capped at Max.
// The zero value uses the defaults.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// Next returns the delay to wait now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	initial, ceiling := b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxDelay
	}
	if b.next <= 0 {
		b.next = initial
	}
	d := b.next
	if d > ceiling {
		d = ceiling
	}
	b.next = d * 2
	return d
}

// Reset makes the next delay Initial again.
func (b *Backoff) Reset() { b.next = 0 }
