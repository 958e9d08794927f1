package sink

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"weldvision/internal/models"
)

var ErrQueueFull = errors.New("sink queue full")

// Async hands records to a background worker so a slow or stalled store
// never holds up the frame loop. Records that do not fit in the queue are
// dropped. Close cancels in-flight writes and discards what is still queued.
type Async struct {
	inner   Sink
	timeout time.Duration
	logger  *zap.SugaredLogger

	queue  chan models.DetectionRecord
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(inner Sink, queueSize int, timeout time.Duration, logger *zap.SugaredLogger) *Async {
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		inner:   inner,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan models.DetectionRecord, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case rec := <-a.queue:
			a.deliver(rec)
		}
	}
}

func (a *Async) deliver(rec models.DetectionRecord) {
	ctx := a.ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
	}

	if err := a.inner.Append(ctx, rec); err != nil {
		a.logger.Warnw("failed to store detection", "label", rec.Label, "error", err)
	}
}

// Append enqueues rec and returns immediately.
func (a *Async) Append(_ context.Context, rec models.DetectionRecord) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return errors.New("sink closed")
	}

	select {
	case a.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	return a.inner.Close()
}
