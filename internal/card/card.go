// Package card holds the vocabulary value types shared by the queue, the
// backends and the alignment engine.
package card

import (
	"fmt"
	"strings"
)

// Key identifies a vocabulary entry in a sentence context.
type Key struct {
	VID int64 `json:"vid"`
	SID int64 `json:"sid"`
}

// String renders the key as "vid/sid".
func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.VID, k.SID)
}

// Card is a dictionary entry plus the user's learning state for it.
// Cards are shared by pointer; only State changes after a backend produced one.
type Card struct {
	VID int64 `json:"vid"`
	SID int64 `json:"sid"`
	// RID is the reading id, 0 when the backend did not report one.
	RID int64 `json:"rid,omitempty"`

	Spelling      string   `json:"spelling"`
	Reading       string   `json:"reading"`
	Meanings      []string `json:"meanings,omitempty"`
	State         State    `json:"state"`
	FrequencyRank *int     `json:"frequency_rank,omitempty"`
}

// Key returns the card's identity.
func (c *Card) Key() Key {
	return Key{VID: c.VID, SID: c.SID}
}

// Ruby is one furigana pair. Reading is empty when Base needs no annotation.
type Ruby struct {
	Base    string `json:"base"`
	Reading string `json:"reading,omitempty"`
}

// NeedsReading reports whether the pair renders a reading over its base.
func (r Ruby) NeedsReading() bool {
	return r.Reading != "" && r.Reading != r.Base
}

// Token is a half-open [Start, End) span of the flattened parse text,
// measured in UTF-16 code units, citing one Card.
type Token struct {
	Start  int   `json:"start"`
	End    int   `json:"end"`
	Length int   `json:"length"`
	Card   *Card `json:"card"`
	// Furigana is nil when the token renders as plain text.
	Furigana []Ruby `json:"furigana,omitempty"`
}

// NewToken builds a token with Length derived from the range.
func NewToken(start, end int, c *Card, furigana []Ruby) Token {
	return Token{Start: start, End: end, Length: end - start, Card: c, Furigana: furigana}
}

// Validate checks the token's internal consistency against the text it covers.
// source must be the token's span of the flattened text.
func (t Token) Validate(source string) error {
	if t.Start < 0 || t.End < t.Start {
		return fmt.Errorf("token [%d,%d) has an invalid range", t.Start, t.End)
	}
	if t.Length != t.End-t.Start {
		return fmt.Errorf("token [%d,%d) has length %d", t.Start, t.End, t.Length)
	}
	if t.Card == nil {
		return fmt.Errorf("token [%d,%d) has no card", t.Start, t.End)
	}
	if t.Furigana == nil {
		return nil
	}
	var b strings.Builder
	for _, r := range t.Furigana {
		if r.Base == "" {
			return fmt.Errorf("token [%d,%d) has an empty furigana base", t.Start, t.End)
		}
		b.WriteString(r.Base)
	}
	if b.String() != source {
		return fmt.Errorf("token [%d,%d) furigana %q does not spell %q", t.Start, t.End, b.String(), source)
	}
	return nil
}

// StateChange is one inbound notification that a card's state moved.
type StateChange struct {
	Key   Key   `json:"key"`
	State State `json:"state"`
}
