package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// DefaultFailureBackoff is the pause after a failed request.
const DefaultFailureBackoff = 1500 * time.Millisecond

type item struct {
	h        *Handle
	req      Request
	ctx      context.Context
	cancel   context.CancelFunc
	release  func() bool
	enqueued time.Time
}

// Stats is a snapshot of the queue.
type Stats struct {
	Pending   int    `json:"pending"`
	Executing bool   `json:"executing"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Canceled  uint64 `json:"canceled"`
}

// Queue executes requests against a backend strictly one at a time in
// submission order. It is safe for concurrent use.
type Queue struct {
	backend        backend.Backend
	failureBackoff time.Duration
	timeout        time.Duration
	logger         *slog.Logger

	seq atomic.Uint64

	// life ends on Close and interrupts the inter-request pause.
	life     context.Context
	shutdown context.CancelFunc

	mu       sync.Mutex
	pending  []*item
	draining bool
	current  *item
	closed   bool
	stats    Stats
}

// Option configures a Queue.
type Option func(*Queue)

// WithFailureBackoff sets the fixed pause after a failed request.
func WithFailureBackoff(d time.Duration) Option {
	return func(q *Queue) { q.failureBackoff = d }
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) { q.timeout = d }
}

// WithLogger sets the logger for request lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New returns an idle queue over b.
func New(b backend.Backend, opts ...Option) *Queue {
	q := &Queue{
		backend:        b,
		failureBackoff: DefaultFailureBackoff,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.life, q.shutdown = context.WithCancel(context.Background())
	return q
}

// Enqueue appends req and returns its handle. Canceling ctx cancels the
// request. After Close the handle settles canceled at once.
func (q *Queue) Enqueue(ctx context.Context, req Request) *Handle {
	h := newHandle(q, q.seq.Add(1))
	itemCtx, cancel := context.WithCancel(ctx)
	it := &item{h: h, req: req, ctx: itemCtx, cancel: cancel, enqueued: time.Now()}
	// If this fires before the append, Cancel misses the item and the drain
	// loop settles it canceled instead.
	it.release = context.AfterFunc(ctx, func() { q.Cancel(h.seq) })

	q.mu.Lock()
	if q.closed {
		q.stats.Canceled++
		q.mu.Unlock()
		q.finish(it, nil, errors.NewCanceled(h.seq))
		return h
	}
	q.pending = append(q.pending, it)
	start := !q.draining
	q.draining = true
	q.mu.Unlock()

	q.logger.Debug("request queued", "seq", h.seq, "kind", req.Kind())
	if start {
		go q.drain()
	}
	return h
}

// Cancel cancels the request with the given sequence number. A pending
// request settles canceled immediately; an executing one has its context
// canceled and settles when the backend returns. It reports false when the
// request is unknown or already settled.
func (q *Queue) Cancel(seq uint64) bool {
	q.mu.Lock()
	for i, it := range q.pending {
		if it.h.seq == seq {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			q.stats.Canceled++
			q.mu.Unlock()
			q.finish(it, nil, errors.NewCanceled(seq))
			q.logger.Debug("request canceled while pending", "seq", seq, "kind", it.req.Kind())
			return true
		}
	}
	cur := q.current
	q.mu.Unlock()

	if cur != nil && cur.h.seq == seq {
		select {
		case <-cur.h.done:
			return false
		default:
		}
		cur.cancel()
		return true
	}
	return false
}

// Close cancels every pending and executing request and stops the queue.
// Requests enqueued afterwards settle canceled.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.stats.Canceled += uint64(len(pending))
	cur := q.current
	q.mu.Unlock()

	for _, it := range pending {
		q.finish(it, nil, errors.NewCanceled(it.h.seq))
	}
	if cur != nil {
		cur.cancel()
	}
	q.shutdown()
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	s.Executing = q.current != nil
	return s
}

// drain runs until the queue is empty. Only one drain goroutine exists at a time.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.closed {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.current = it
		q.mu.Unlock()

		wait := q.run(it)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()

		if wait > 0 {
			_ = sleepCtx(q.life, wait)
		}
	}
}

// run executes one item, settles it and returns the pause before the next.
func (q *Queue) run(it *item) time.Duration {
	seq, kind := it.h.seq, it.req.Kind()
	if it.ctx.Err() != nil {
		q.count(func(s *Stats) { s.Canceled++ })
		q.finish(it, nil, errors.NewCanceled(seq))
		return 0
	}

	start := time.Now()
	q.logger.Debug("request started", "seq", seq, "kind", kind, "queued", start.Sub(it.enqueued))
	res, delay, err := q.execute(it)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		q.count(func(s *Stats) { s.Completed++ })
		q.finish(it, res, nil)
		q.logger.Debug("request finished", "seq", seq, "kind", kind, "duration", elapsed, "delay", delay)
		return delay
	case it.ctx.Err() != nil:
		q.count(func(s *Stats) { s.Canceled++ })
		q.finish(it, nil, errors.NewCanceled(seq))
		q.logger.Debug("request canceled while executing", "seq", seq, "kind", kind, "duration", elapsed)
		return delay
	default:
		q.count(func(s *Stats) { s.Failed++ })
		q.finish(it, nil, asBackendError(err))
		q.logger.Warn("request failed", "seq", seq, "kind", kind, "duration", elapsed, "error", err)
		return q.failureBackoff
	}
}

func (q *Queue) execute(it *item) (*Result, time.Duration, error) {
	ctx := it.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	switch r := it.req.(type) {
	case ParseRequest:
		tokens, delay, err := q.backend.Parse(ctx, r.Texts)
		if stderrors.Is(err, backend.ErrNoResults) {
			return &Result{Tokens: make([][]card.Token, len(r.Texts))}, delay, nil
		}
		if err != nil {
			return nil, delay, err
		}
		if len(tokens) != len(r.Texts) {
			return nil, delay, fmt.Errorf("backend returned %d token lists for %d texts", len(tokens), len(r.Texts))
		}
		return &Result{Tokens: tokens}, delay, nil
	case MutateRequest:
		changes, delay, err := q.backend.Mutate(ctx, r.Mutation)
		if err != nil {
			return nil, delay, err
		}
		return &Result{Changes: changes}, delay, nil
	default:
		return nil, 0, errors.NewInternal(fmt.Errorf("unknown request kind %T", it.req))
	}
}

func (q *Queue) finish(it *item, res *Result, err error) {
	it.h.settle(res, err)
	it.cancel()
	it.release()
}

func (q *Queue) count(fn func(*Stats)) {
	q.mu.Lock()
	fn(&q.stats)
	q.mu.Unlock()
}

// asBackendError keeps coded errors and wraps anything else as a backend failure.
func asBackendError(err error) error {
	var bErr *errors.BreaderError
	if stderrors.As(err, &bErr) {
		return err
	}
	return errors.NewBackend("queue", err)
}

// sleepCtx sleeps for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
