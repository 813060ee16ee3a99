// Package index maps vocabulary keys to the annotated elements that render
// them, so a state change can restyle every occurrence in place.
package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"golang.org/x/net/html"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/dom"
)

// Element is one registered word container.
type Element struct {
	Node *html.Node
	Card *card.Card
}

type entry struct {
	class string
	elems *roaring64.Bitmap
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.Mutex
	entries map[card.Key]*entry
	elems   map[uint64]Element
	handles map[*html.Node]uint64
	next    uint64
}

// New returns an empty index.
func New() *Index {
	return &Index{
		entries: make(map[card.Key]*entry),
		elems:   make(map[uint64]Element),
		handles: make(map[*html.Node]uint64),
	}
}

// Register records elem under key. Registering the same node twice is a no-op.
// The first registration for a key fixes its current class string.
func (x *Index) Register(key card.Key, elem Element) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.handles[elem.Node]; ok {
		return
	}
	h := x.next
	x.next++
	x.elems[h] = elem
	x.handles[elem.Node] = h

	e, ok := x.entries[key]
	if !ok {
		class, _ := dom.Attr(elem.Node, "class")
		if class == "" && elem.Card != nil {
			class = card.ClassString(elem.Card.State)
		}
		e = &entry{class: class, elems: roaring64.New()}
		x.entries[key] = e
	}
	e.elems.Add(h)
}

// Lookup returns the key's current class string and its elements in
// registration order.
func (x *Index) Lookup(key card.Key) (string, []Element, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	e, ok := x.entries[key]
	if !ok {
		return "", nil, false
	}
	return e.class, x.collect(e), true
}

// Len returns the number of registered elements.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.elems)
}

// ApplyStateChange restyles every element registered under key when the
// state's class string differs from the recorded one. It returns the number
// of elements updated.
func (x *Index) ApplyStateChange(key card.Key, state card.State) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.apply(key, state)
}

// ApplyStateChanges applies a batch of notifications under one lock.
func (x *Index) ApplyStateChanges(changes []card.StateChange) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := 0
	for _, c := range changes {
		n += x.apply(c.Key, c.State)
	}
	return n
}

func (x *Index) apply(key card.Key, state card.State) int {
	e, ok := x.entries[key]
	if !ok {
		return 0
	}
	class := card.ClassString(state)
	if class == e.class {
		return 0
	}
	elems := x.collect(e)
	for _, el := range elems {
		dom.SetAttr(el.Node, "class", class)
		if el.Card != nil {
			el.Card.State = state
		}
	}
	e.class = class
	return len(elems)
}

// Hit returns the card of the registered container n belongs to, walking up
// from n through its ancestors.
func (x *Index) Hit(n *html.Node) (*card.Card, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for p := n; p != nil; p = p.Parent {
		if h, ok := x.handles[p]; ok {
			return x.elems[h].Card, true
		}
	}
	return nil, false
}

// Prune drops elements no longer attached to a document and returns how many
// were removed. Keys left without elements are forgotten.
func (x *Index) Prune() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for key, e := range x.entries {
		it := e.elems.Iterator()
		var dead []uint64
		for it.HasNext() {
			h := it.Next()
			if !dom.Attached(x.elems[h].Node) {
				dead = append(dead, h)
			}
		}
		for _, h := range dead {
			e.elems.Remove(h)
			delete(x.handles, x.elems[h].Node)
			delete(x.elems, h)
			removed++
		}
		if e.elems.IsEmpty() {
			delete(x.entries, key)
		}
	}
	return removed
}

func (x *Index) collect(e *entry) []Element {
	out := make([]Element, 0, e.elems.GetCardinality())
	it := e.elems.Iterator()
	for it.HasNext() {
		out = append(out, x.elems[it.Next()])
	}
	return out
}
