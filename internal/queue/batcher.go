package queue

import (
	"context"
	"sync"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// Batcher coalesces parse texts into shared ParseRequests. Texts submitted
// within one window, up to max texts, travel in a single request.
type Batcher struct {
	q      *Queue
	window time.Duration
	max    int

	mu   sync.Mutex
	open *batch
}

type batch struct {
	texts    []string
	pendings []*Pending
	timer    *time.Timer
	handle   *Handle
	live     int
}

// Pending is one submitted text awaiting its tokens.
type Pending struct {
	b    *Batcher
	bt   *batch
	idx  int
	once sync.Once
	done chan struct{}

	// canceled is guarded by b.mu.
	canceled bool

	tokens []card.Token
	err    error
}

// NewBatcher returns a batcher over q. A window of zero sends every text on
// its own; max <= 0 means no size limit.
func NewBatcher(q *Queue, window time.Duration, max int) *Batcher {
	return &Batcher{q: q, window: window, max: max}
}

// Submit adds text to the open batch. Canceling ctx cancels the text.
func (b *Batcher) Submit(ctx context.Context, text string) *Pending {
	b.mu.Lock()
	bt := b.open
	if bt == nil {
		bt = &batch{}
		b.open = bt
		if b.window > 0 {
			bt.timer = time.AfterFunc(b.window, func() {
				b.mu.Lock()
				defer b.mu.Unlock()
				b.flushLocked(bt)
			})
		}
	}
	p := &Pending{b: b, bt: bt, idx: len(bt.texts), done: make(chan struct{})}
	bt.texts = append(bt.texts, text)
	bt.pendings = append(bt.pendings, p)
	bt.live++
	if b.window <= 0 || (b.max > 0 && len(bt.texts) >= b.max) {
		b.flushLocked(bt)
	}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { p.Cancel() })
	return p
}

// Flush sends the open batch now.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open != nil {
		b.flushLocked(b.open)
	}
}

func (b *Batcher) flushLocked(bt *batch) {
	if bt.handle != nil || b.open != bt {
		return
	}
	b.open = nil
	if bt.timer != nil {
		bt.timer.Stop()
	}
	if bt.live == 0 {
		return
	}
	bt.handle = b.q.Enqueue(context.Background(), ParseRequest{Texts: bt.texts})
	go b.route(bt)
}

// route hands each pending its slice of the shared result.
func (b *Batcher) route(bt *batch) {
	<-bt.handle.Done()
	res, err := bt.handle.Result()
	for _, p := range bt.pendings {
		if err != nil {
			p.settle(nil, err)
			continue
		}
		p.settle(res.Tokens[p.idx], nil)
	}
}

// Seq returns the sequence number of the queue request carrying the text,
// or 0 while it has not been sent.
func (p *Pending) Seq() uint64 {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if p.bt.handle == nil {
		return 0
	}
	return p.bt.handle.Seq()
}

// Done is closed once the text's tokens, or its failure, are known.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks for the text's tokens. Offsets are UTF-16 units into the text.
func (p *Pending) Wait(ctx context.Context) ([]card.Token, error) {
	select {
	case <-p.done:
		return p.tokens, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel gives up on the text. An unsent text is dropped from its batch; a
// sent one settles canceled, and the shared request is canceled once every
// text in it has been. It reports false once the text has settled.
func (p *Pending) Cancel() bool {
	select {
	case <-p.done:
		return false
	default:
	}

	b := p.b
	b.mu.Lock()
	if p.canceled {
		b.mu.Unlock()
		return false
	}
	p.canceled = true
	bt := p.bt
	var seq uint64
	var cancelShared *Handle
	if bt.handle == nil {
		bt.texts = append(bt.texts[:p.idx:p.idx], bt.texts[p.idx+1:]...)
		bt.pendings = append(bt.pendings[:p.idx:p.idx], bt.pendings[p.idx+1:]...)
		for i := p.idx; i < len(bt.pendings); i++ {
			bt.pendings[i].idx = i
		}
		bt.live--
		if bt.live == 0 && b.open == bt {
			b.open = nil
			if bt.timer != nil {
				bt.timer.Stop()
			}
		}
	} else {
		seq = bt.handle.Seq()
		bt.live--
		if bt.live == 0 {
			cancelShared = bt.handle
		}
	}
	b.mu.Unlock()

	ok := p.settle(nil, errors.NewCanceled(seq))
	if cancelShared != nil {
		cancelShared.Cancel()
	}
	return ok
}

func (p *Pending) settle(tokens []card.Token, err error) bool {
	settled := false
	p.once.Do(func() {
		p.tokens, p.err = tokens, err
		close(p.done)
		settled = true
	})
	return settled
}
