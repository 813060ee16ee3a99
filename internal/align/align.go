// Package align rewrites a document subtree so every backend token becomes
// one annotated word container, and registers each container in the
// reverse index.
package align

import (
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/dom"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/fragment"
	"github.com/max-kamps/jpd-breader-sub000/internal/index"
)

// tombstoneStyle hides preserved original nodes regardless of page CSS.
const tombstoneStyle = "display:none !important"

// Engine applies parse results to a document. It is not safe for concurrent
// use on the same document; callers serialize Apply with their own lock.
type Engine struct {
	Index *index.Index
}

// New returns an engine registering into idx.
func New(idx *index.Index) *Engine {
	return &Engine{Index: idx}
}

// segment is a half-open slice [start, end) of one fragment, owned by a token
// or unparsed (tok == -1).
type segment struct {
	frag       int
	start, end int
	tok        int
}

// item is one piece of a container's content: a text run or an absorbed ruby.
type item struct {
	start, end int
	text       string
	ruby       *html.Node
}

type container struct {
	node  *html.Node
	items []item
}

// Apply aligns tokens against fragments and rewrites the document.
// fragments must come from one fresh fragment.Walk over the text that was
// parsed; tokens must be that parse's output. All input is validated before
// the document is touched.
func (e *Engine) Apply(fragments []fragment.Fragment, tokens []card.Token, preserveOriginalNodes bool) error {
	tokens, err := validate(fragments, tokens)
	if err != nil {
		return err
	}
	segs := plan(fragments, tokens)

	containers := make([]*container, len(tokens))
	for i := 0; i < len(segs); {
		j := i
		for j < len(segs) && segs[j].frag == segs[i].frag {
			j++
		}
		f := fragments[segs[i].frag]
		if f.HasRuby {
			e.rewriteRuby(f, segs[i], tokens, containers)
		} else {
			e.rewriteText(f, segs[i:j], tokens, containers, preserveOriginalNodes)
		}
		i = j
	}

	for k, c := range containers {
		if c == nil {
			continue
		}
		fill(c, tokens[k])
		if e.Index != nil {
			e.Index.Register(tokens[k].Card.Key(), index.Element{Node: c.node, Card: tokens[k].Card})
		}
	}
	return nil
}

// validate checks every precondition and returns the tokens that take part
// in alignment: tokens starting at or past the end of the text, and empty
// tokens, match no fragment.
func validate(fragments []fragment.Fragment, tokens []card.Token) ([]card.Token, error) {
	total := 0
	for i, f := range fragments {
		if f.Node == nil || f.Node.Parent == nil {
			return nil, errors.NewPrecondition("fragment %d is detached", i)
		}
		if f.Start != total {
			return nil, errors.NewPrecondition("fragment %d starts at %d, want %d", i, f.Start, total)
		}
		if f.Length != f.End-f.Start {
			return nil, errors.NewPrecondition("fragment %d has length %d for [%d,%d)", i, f.Length, f.Start, f.End)
		}
		if f.HasRuby != (f.Node.Type == html.ElementNode && f.Node.DataAtom == atom.Ruby) {
			return nil, errors.NewPrecondition("fragment %d ruby flag does not match its node", i)
		}
		if card.UTF16Len(f.Text()) != f.Length {
			return nil, errors.NewPrecondition("fragment %d is stale", i)
		}
		total = f.End
	}
	source := fragment.Text(fragments)

	kept := make([]card.Token, 0, len(tokens))
	prevEnd := 0
	for i, t := range tokens {
		if t.Start < 0 || t.End < t.Start {
			return nil, errors.NewPrecondition("token %d has an invalid range [%d,%d)", i, t.Start, t.End)
		}
		if t.Length != t.End-t.Start {
			return nil, errors.NewPrecondition("token %d has length %d for [%d,%d)", i, t.Length, t.Start, t.End)
		}
		if t.Start < prevEnd {
			return nil, errors.NewPrecondition("token %d at %d overlaps or precedes the previous token ending at %d", i, t.Start, prevEnd)
		}
		prevEnd = t.End
		if t.Card == nil {
			return nil, errors.NewPrecondition("token %d has no card", i)
		}
		if t.Start >= total || t.Length == 0 {
			continue
		}
		if t.End > total {
			return nil, errors.NewPrecondition("token %d ends at %d past the text end %d", i, t.End, total)
		}
		span, err := card.SliceUTF16(source, t.Start, t.End)
		if err != nil {
			return nil, errors.NewPrecondition("token %d: %v", i, err)
		}
		if err := t.Validate(span); err != nil {
			return nil, errors.NewPrecondition("token %d: %v", i, err)
		}
		kept = append(kept, t)
	}
	return kept, nil
}

// plan partitions the fragments into segments. Ruby fragments are atomic: the
// first token overlapping one owns all of it, and tokens starting inside an
// absorbed ruby are dropped.
func plan(fragments []fragment.Fragment, tokens []card.Token) []segment {
	var (
		segs   []segment
		next   int
		active = -1
	)
	skipBefore := func(pos int) {
		for next < len(tokens) && tokens[next].Start < pos {
			next++
		}
	}

	for fi, f := range fragments {
		if f.HasRuby {
			owner := active
			if owner < 0 {
				skipBefore(f.Start)
				if next < len(tokens) && tokens[next].Start < f.End {
					owner = next
					next++
				}
			}
			segs = append(segs, segment{frag: fi, start: f.Start, end: f.End, tok: owner})
			active = -1
			if owner >= 0 && tokens[owner].End > f.End {
				active = owner
			}
			skipBefore(f.End)
			continue
		}

		pos := f.Start
		for pos < f.End {
			if active >= 0 {
				end := min(tokens[active].End, f.End)
				segs = append(segs, segment{frag: fi, start: pos, end: end, tok: active})
				pos = end
				if tokens[active].End <= end {
					active = -1
				}
				continue
			}
			skipBefore(pos)
			if next < len(tokens) && tokens[next].Start < f.End {
				if s := tokens[next].Start; s > pos {
					segs = append(segs, segment{frag: fi, start: pos, end: s, tok: -1})
					pos = s
				}
				active = next
				next++
				continue
			}
			segs = append(segs, segment{frag: fi, start: pos, end: f.End, tok: -1})
			pos = f.End
		}
	}
	return segs
}

func (e *Engine) rewriteRuby(f fragment.Fragment, s segment, tokens []card.Token, containers []*container) {
	if s.tok < 0 {
		return
	}
	c := open(containers, s.tok, tokens[s.tok], f.Node)
	c.items = append(c.items, item{start: s.start, end: s.end, ruby: f.Node})
}

func (e *Engine) rewriteText(f fragment.Fragment, segs []segment, tokens []card.Token, containers []*container, preserve bool) {
	n := f.Node
	if len(segs) == 1 && segs[0].tok < 0 {
		wrap := unparsedSpan()
		n.Parent.InsertBefore(wrap, n)
		dom.Detach(n)
		wrap.AppendChild(n)
		return
	}

	var first *html.Node
	for _, s := range segs {
		// Offsets were validated against this text.
		text, _ := card.SliceUTF16(n.Data, s.start-f.Start, s.end-f.Start)
		var repl *html.Node
		if s.tok < 0 {
			repl = unparsedSpan()
			repl.AppendChild(dom.Text(text))
			n.Parent.InsertBefore(repl, n)
		} else {
			c := open(containers, s.tok, tokens[s.tok], n)
			c.items = append(c.items, item{start: s.start, end: s.end, text: text})
			repl = c.node
		}
		if first == nil {
			first = repl
		}
	}

	dom.Detach(n)
	if preserve {
		tomb := dom.Element(atom.Span, "class", dom.ClassHidden, "style", tombstoneStyle)
		tomb.AppendChild(n)
		first.InsertBefore(tomb, first.FirstChild)
	}
}

// open returns the token's container, creating it in front of at on first use.
func open(containers []*container, k int, t card.Token, at *html.Node) *container {
	if c := containers[k]; c != nil {
		return c
	}
	node := dom.Element(atom.Span,
		"class", card.ClassString(t.Card.State),
		"data-vid", strconv.FormatInt(t.Card.VID, 10),
		"data-sid", strconv.FormatInt(t.Card.SID, 10),
	)
	at.Parent.InsertBefore(node, at)
	c := &container{node: node}
	containers[k] = c
	return c
}

// fill builds the container's content: adjacent text runs are merged and
// rendered with the token's furigana, absorbed rubies are moved in as-is.
func fill(c *container, t card.Token) {
	var run *item
	flush := func() {
		if run != nil {
			renderRun(c.node, *run, t)
			run = nil
		}
	}
	for _, it := range c.items {
		if it.ruby != nil {
			flush()
			dom.Detach(it.ruby)
			c.node.AppendChild(it.ruby)
			continue
		}
		if run != nil && run.end == it.start {
			run.end = it.end
			run.text += it.text
			continue
		}
		flush()
		cp := it
		run = &cp
	}
	flush()
}

// renderRun appends run to parent, wrapping every furigana pair that lies
// wholly inside the run and needs a reading in <ruby>base<rt>reading</rt></ruby>.
func renderRun(parent *html.Node, run item, t card.Token) {
	if t.Furigana == nil {
		parent.AppendChild(dom.Text(run.text))
		return
	}
	var plain string
	flushPlain := func() {
		if plain != "" {
			parent.AppendChild(dom.Text(plain))
			plain = ""
		}
	}
	ps := t.Start
	for _, r := range t.Furigana {
		pe := ps + card.UTF16Len(r.Base)
		a, b := max(ps, run.start), min(pe, run.end)
		if a < b {
			piece, _ := card.SliceUTF16(run.text, a-run.start, b-run.start)
			if a == ps && b == pe && r.NeedsReading() {
				flushPlain()
				parent.AppendChild(rubyElement(r))
			} else {
				plain += piece
			}
		}
		ps = pe
	}
	flushPlain()
}

func rubyElement(r card.Ruby) *html.Node {
	ruby := dom.Element(atom.Ruby)
	ruby.AppendChild(dom.Text(r.Base))
	rt := dom.Element(atom.Rt)
	rt.AppendChild(dom.Text(r.Reading))
	ruby.AppendChild(rt)
	return ruby
}

func unparsedSpan() *html.Node {
	return dom.Element(atom.Span, "class", dom.ClassWord+" "+dom.ClassUnparsed)
}

// BaseText returns the text of n as read without readings: <rt>, <rp> and
// tombstones are skipped.
func BaseText(n *html.Node) string {
	return dom.TextContent(n, skipForBase)
}

func skipForBase(n *html.Node) bool {
	return dom.IsReadingAnnotation(n) || dom.HasClass(n, dom.ClassHidden)
}

// ReadingText returns the pronunciation of n: every ruby base that carries an
// <rt> is replaced by its reading, other text is kept.
func ReadingText(n *html.Node) string {
	var out []byte
	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case cur.Type == html.TextNode:
			out = append(out, cur.Data...)
			continue
		case cur != n && dom.HasClass(cur, dom.ClassHidden):
			continue
		case cur.Type == html.ElementNode && cur.DataAtom == atom.Ruby:
			out = append(out, rubyReading(cur)...)
			continue
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return string(out)
}

// rubyReading pairs each base run of a ruby element with the <rt> following it.
func rubyReading(ruby *html.Node) string {
	var out, base []byte
	for c := ruby.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.ElementNode && c.DataAtom == atom.Rt:
			if rt := dom.TextContent(c, nil); rt != "" {
				base = []byte(rt)
			}
			out = append(out, base...)
			base = nil
		case c.Type == html.ElementNode && c.DataAtom == atom.Rp:
		case dom.HasClass(c, dom.ClassHidden):
		default:
			base = append(base, dom.TextContent(c, skipForBase)...)
		}
	}
	return string(append(out, base...))
}
