package queue

import (
	"context"
	"sync"
)

// Handle tracks one enqueued request until it settles.
type Handle struct {
	seq  uint64
	q    *Queue
	once sync.Once
	done chan struct{}

	result *Result
	err    error
}

func newHandle(q *Queue, seq uint64) *Handle {
	return &Handle{seq: seq, q: q, done: make(chan struct{})}
}

// Seq returns the request's sequence number, unique and increasing per queue.
func (h *Handle) Seq() uint64 {
	return h.seq
}

// Done is closed once the request has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (h *Handle) Result() (*Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return nil, nil
	}
}

// Wait blocks until the request settles or ctx ends. Giving up on the wait
// does not cancel the request.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel cancels the request. It reports false once the request has settled.
func (h *Handle) Cancel() bool {
	return h.q.Cancel(h.seq)
}

// settle records the outcome; only the first call has any effect.
func (h *Handle) settle(r *Result, err error) bool {
	settled := false
	h.once.Do(func() {
		h.result, h.err = r, err
		close(h.done)
		settled = true
	})
	return settled
}
