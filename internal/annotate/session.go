// Package annotate ties one live document to the request queue and the
// alignment engine: paragraphs go out as parse texts, tokens come back and are
// aligned, and later state changes restyle the annotated words in place.
package annotate

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/max-kamps/jpd-breader-sub000/internal/align"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/fragment"
	"github.com/max-kamps/jpd-breader-sub000/internal/index"
	"github.com/max-kamps/jpd-breader-sub000/internal/queue"
)

// Options configures a Session.
type Options struct {
	// Exclude drops subtrees from the parse text, e.g. spoiler placeholders.
	Exclude fragment.Exclude
	// PreserveOriginalNodes keeps replaced text nodes as hidden tombstones.
	PreserveOriginalNodes bool
	Logger                *slog.Logger
}

// ParseBatch is one paragraph in flight: the fragments its text was built
// from and the pending tokens for that text.
type ParseBatch struct {
	Fragments []fragment.Fragment
	Pending   *queue.Pending
}

// Seq returns the queue sequence number carrying the paragraph, 0 until sent.
func (pb *ParseBatch) Seq() uint64 {
	return pb.Pending.Seq()
}

// Report summarizes one Annotate call.
type Report struct {
	Paragraphs int `json:"paragraphs"`
	Annotated  int `json:"annotated"`
	Failed     int `json:"failed"`
	Words      int `json:"words"`
}

// Session owns one document. All document access goes through the session's
// lock, so state changes only ever see fully applied paragraphs.
type Session struct {
	id      string
	created time.Time

	batcher *queue.Batcher
	index   *index.Index
	engine  *align.Engine
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	doc      *html.Node
	inflight []*ParseBatch
}

// New returns a session over doc. doc must be a document node.
func New(doc *html.Node, b *queue.Batcher, opts Options) *Session {
	idx := index.New()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		created: time.Now(),
		batcher: b,
		index:   idx,
		engine:  align.New(idx),
		opts:    opts,
		logger:  logger,
		doc:     doc,
	}
}

// Parse reads an HTML document and returns a session over it.
func Parse(r io.Reader, b *queue.Batcher, opts Options) (*Session, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid html: %v", err))
	}
	return New(doc, b, opts), nil
}

// ID returns the id assigned by a Registry, or "" when unregistered.
func (s *Session) ID() string {
	return s.id
}

// Created returns when the session was made.
func (s *Session) Created() time.Time {
	return s.created
}

// Annotate parses every paragraph of the document and aligns the results in
// document order. A failed paragraph is left untouched and reported in the
// returned error; the others are annotated regardless. A precondition
// violation stops the call at once, leaving earlier paragraphs annotated.
func (s *Session) Annotate(ctx context.Context) (Report, error) {
	s.mu.Lock()
	paras := fragment.Paragraphs(s.doc, s.opts.Exclude)
	batches := make([]*ParseBatch, len(paras))
	for i, p := range paras {
		batches[i] = &ParseBatch{Fragments: p, Pending: s.batcher.Submit(ctx, fragment.Text(p))}
	}
	s.inflight = append(s.inflight, batches...)
	s.mu.Unlock()
	s.batcher.Flush()
	defer s.forget(batches)

	rep := Report{Paragraphs: len(batches)}
	var failures []error
	for i, pb := range batches {
		tokens, err := pb.Pending.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.cancel(batches[i:])
				return rep, ctx.Err()
			}
			rep.Failed++
			s.logger.Warn("paragraph parse failed", "session", s.id, "paragraph", i, "seq", pb.Seq(), "error", err)
			failures = append(failures, fmt.Errorf("paragraph %d: %w", i, err))
			continue
		}

		s.mu.Lock()
		err = s.engine.Apply(pb.Fragments, tokens, s.opts.PreserveOriginalNodes)
		s.mu.Unlock()
		if err != nil {
			s.cancel(batches[i+1:])
			s.logger.Error("alignment failed", "session", s.id, "paragraph", i, "error", err)
			return rep, fmt.Errorf("paragraph %d: %w", i, err)
		}
		rep.Annotated++
		rep.Words += len(tokens)
	}

	s.logger.Info("document annotated", "session", s.id,
		"paragraphs", rep.Paragraphs, "failed", rep.Failed, "words", rep.Words)
	return rep, stderrors.Join(failures...)
}

// Cancel gives up on every paragraph still waiting for tokens.
func (s *Session) Cancel() int {
	s.mu.Lock()
	batches := s.inflight
	s.inflight = nil
	s.mu.Unlock()
	return s.cancel(batches)
}

func (s *Session) cancel(batches []*ParseBatch) int {
	n := 0
	for _, pb := range batches {
		if pb.Pending.Cancel() {
			n++
		}
	}
	return n
}

func (s *Session) forget(batches []*ParseBatch) {
	done := make(map[*ParseBatch]bool, len(batches))
	for _, pb := range batches {
		done[pb] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.inflight[:0]
	for _, pb := range s.inflight {
		if !done[pb] {
			kept = append(kept, pb)
		}
	}
	s.inflight = kept
}

// ApplyStateChanges restyles every annotated occurrence of the changed cards
// and returns the number of elements touched.
func (s *Session) ApplyStateChanges(changes []card.StateChange) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.ApplyStateChanges(changes)
}

// Hit returns the card rendered by n or its nearest annotated ancestor.
func (s *Session) Hit(n *html.Node) (*card.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Hit(n)
}

// Lookup returns the current class for key and how many elements render it.
func (s *Session) Lookup(key card.Key) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, elems, ok := s.index.Lookup(key)
	return class, len(elems), ok
}

// Prune drops index entries for elements no longer in the document.
func (s *Session) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Prune()
}

// Render writes the document as HTML.
func (s *Session) Render(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return html.Render(w, s.doc)
}

// HTML returns the rendered document.
func (s *Session) HTML() (string, error) {
	var b strings.Builder
	if err := s.Render(&b); err != nil {
		return "", errors.NewInternal(err)
	}
	return b.String(), nil
}

// Text returns the document's reading text: annotated words read as their
// furigana, everything else as written.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return align.ReadingText(s.doc)
}
