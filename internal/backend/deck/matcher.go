package deck

import (
	"sort"

	aho "github.com/anknown/ahocorasick"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

// match is one accepted spelling occurrence, in rune offsets.
type match struct {
	start, end int
	key        card.Key
}

// matcher finds deck spellings in text with an Aho-Corasick automaton.
type matcher struct {
	machine *aho.Machine
	keys    map[string]card.Key
}

// newMatcher compiles the spellings of cards. When several cards share a
// spelling the first one wins, so callers pass cards in a stable order.
func newMatcher(cards []*card.Card) (*matcher, error) {
	m := &matcher{keys: make(map[string]card.Key, len(cards))}
	for _, c := range cards {
		if c.Spelling == "" {
			continue
		}
		if _, ok := m.keys[c.Spelling]; !ok {
			m.keys[c.Spelling] = c.Key()
		}
	}
	if len(m.keys) == 0 {
		return m, nil
	}

	words := make([]string, 0, len(m.keys))
	for w := range m.keys {
		words = append(words, w)
	}
	sort.Strings(words)
	patterns := make([][]rune, len(words))
	for i, w := range words {
		patterns[i] = []rune(w)
	}

	m.machine = &aho.Machine{}
	if err := m.machine.Build(patterns); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *matcher) empty() bool {
	return m.machine == nil
}

// find returns non-overlapping matches chosen leftmost-longest.
func (m *matcher) find(text []rune) []match {
	if m.empty() || len(text) == 0 {
		return nil
	}
	terms := m.machine.MultiPatternSearch(text, false)
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Pos != terms[j].Pos {
			return terms[i].Pos < terms[j].Pos
		}
		return len(terms[i].Word) > len(terms[j].Word)
	})

	var out []match
	cursor := 0
	for _, t := range terms {
		if t.Pos < cursor {
			continue
		}
		end := t.Pos + len(t.Word)
		out = append(out, match{start: t.Pos, end: end, key: m.keys[string(t.Word)]})
		cursor = end
	}
	return out
}
