// Package fragment flattens a document subtree into offset-addressed text
// fragments. Offsets are UTF-16 code units, the coordinate space backends
// report token positions in.
package fragment

import (
	"iter"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/dom"
)

// Fragment is one text-bearing unit of the document.
// A fragment is valid only until the engine mutates its node.
type Fragment struct {
	Start  int
	End    int
	Length int
	// Node is a text node, or a <ruby> element when HasRuby is set.
	Node    *html.Node
	HasRuby bool
}

// Text returns the fragment's source text. For ruby fragments that is the
// base text without readings.
func (f Fragment) Text() string {
	if f.HasRuby {
		return RubyBase(f.Node)
	}
	return f.Node.Data
}

// Exclude reports whether a subtree must be left out of the flattened text.
type Exclude func(*html.Node) bool

// ExcludeClasses excludes elements carrying any of the given classes.
func ExcludeClasses(classes ...string) Exclude {
	if len(classes) == 0 {
		return nil
	}
	return func(n *html.Node) bool {
		for _, c := range classes {
			if dom.HasClass(n, c) {
				return true
			}
		}
		return false
	}
}

// RubyBase returns the base text of a ruby element.
func RubyBase(n *html.Node) string {
	return dom.TextContent(n, dom.IsReadingAnnotation)
}

// Walk yields the fragments under roots in document order. Each range over
// the returned sequence traverses the live tree again from offset 0.
func Walk(roots []*html.Node, exclude Exclude) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		offset := 0
		traverse(roots, exclude, func(n *html.Node, ruby bool) bool {
			f := newFragment(n, ruby, offset)
			offset = f.End
			return yield(f)
		}, nil)
	}
}

// Extract collects Walk into a slice.
func Extract(roots []*html.Node, exclude Exclude) []Fragment {
	var out []Fragment
	for f := range Walk(roots, exclude) {
		out = append(out, f)
	}
	return out
}

// Text concatenates the fragments' source text: the string a parse request sends.
func Text(fragments []Fragment) string {
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f.Text())
	}
	return b.String()
}

// Paragraphs splits root into parse units at block boundaries.
// Offsets restart at 0 in every paragraph; whitespace-only paragraphs are dropped.
func Paragraphs(root *html.Node, exclude Exclude) [][]Fragment {
	var (
		out     [][]Fragment
		cur     []Fragment
		offset  int
		hasText bool
	)
	flush := func() {
		if hasText {
			out = append(out, cur)
		}
		cur, offset, hasText = nil, 0, false
	}
	traverse([]*html.Node{root}, exclude, func(n *html.Node, ruby bool) bool {
		f := newFragment(n, ruby, offset)
		offset = f.End
		cur = append(cur, f)
		if strings.TrimSpace(f.Text()) != "" {
			hasText = true
		}
		return true
	}, flush)
	flush()
	return out
}

func newFragment(n *html.Node, ruby bool, start int) Fragment {
	f := Fragment{Start: start, Node: n, HasRuby: ruby}
	f.Length = card.UTF16Len(f.Text())
	f.End = start + f.Length
	return f
}

// skipped holds elements whose text never reaches a parse request.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Textarea: true,
	atom.Template: true,
	atom.Rt:       true,
	atom.Rp:       true,
	atom.Head:     true,
	atom.Title:    true,
}

// blocks end a paragraph when entered or left.
var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true,
	atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Td: true,
	atom.Th: true, atom.Tr: true, atom.Ul: true, atom.Body: true,
}

type visit struct {
	n    *html.Node
	exit bool
}

// traverse runs an explicit-stack depth-first walk. emit receives text nodes
// and whole ruby elements and stops the walk by returning false. brk, when
// set, is called at every block boundary.
func traverse(roots []*html.Node, exclude Exclude, emit func(*html.Node, bool) bool, brk func()) {
	stack := make([]visit, 0, 32)
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, visit{n: roots[i]})
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if v.exit {
			brk()
			continue
		}
		n := v.n
		switch n.Type {
		case html.TextNode:
			if n.Data == "" {
				continue
			}
			if !emit(n, false) {
				return
			}
			continue
		case html.ElementNode:
			if skipped[n.DataAtom] || dom.HasClass(n, dom.ClassHidden) {
				continue
			}
			if exclude != nil && exclude(n) {
				continue
			}
			if n.DataAtom == atom.Br {
				if brk != nil {
					brk()
				}
				continue
			}
			if n.DataAtom == atom.Ruby {
				if RubyBase(n) == "" {
					continue
				}
				if !emit(n, true) {
					return
				}
				continue
			}
			if brk != nil && blocks[n.DataAtom] {
				brk()
				stack = append(stack, visit{n: n, exit: true})
			}
		case html.DocumentNode:
		default:
			continue
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, visit{n: c})
		}
	}
}
