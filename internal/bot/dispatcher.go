package bot

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/telegram"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// UpdateHandler is implemented by Handler.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

// Dispatcher routes updates to a fixed set of workers by hashing the user
// id, so updates of one user are handled one at a time in arrival order.
type Dispatcher struct {
	workers []chan telegram.Update
	handler UpdateHandler
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, handler UpdateHandler, log *zap.SugaredLogger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan telegram.Update, numWorkers),
		handler: handler,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan telegram.Update, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Enqueue hands u to the worker owning its user. It blocks while that
// worker's buffer is full and gives up when ctx ends.
func (d *Dispatcher) Enqueue(ctx context.Context, u telegram.Update) {
	idx := d.shardIndex(u.UserID())
	select {
	case d.workers[idx] <- u:
		metrics.DispatchQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	case <-ctx.Done():
		d.log.Debugw("update dropped on shutdown", "update_id", u.UpdateID)
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID int64) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(userID, 10)))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan telegram.Update) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-ch:
			metrics.DispatchQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.handler.HandleUpdate(ctx, u)
		}
	}
}
