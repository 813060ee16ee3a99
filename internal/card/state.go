package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tag is one learning-state tag.
type Tag string

const (
	NotInDeck   Tag = "not-in-deck"
	New         Tag = "new"
	Learning    Tag = "learning"
	Known       Tag = "known"
	NeverForget Tag = "never-forget"
	Due         Tag = "due"
	Failed      Tag = "failed"
	Suspended   Tag = "suspended"
	Blacklisted Tag = "blacklisted"

	// Modifiers, only valid paired with one of the tags above.
	Redundant Tag = "redundant"
	Locked    Tag = "locked"
)

var baseTags = map[Tag]bool{
	NotInDeck: true, New: true, Learning: true, Known: true, NeverForget: true,
	Due: true, Failed: true, Suspended: true, Blacklisted: true,
}

// State is a base tag with an optional redundant/locked modifier.
type State struct {
	Tag      Tag
	Modifier Tag
}

// Plain returns a State without modifier.
func Plain(t Tag) State {
	return State{Tag: t}
}

// ParseState reads the backend's list form, e.g. ["redundant", "learning"].
// An empty list means the word is not in any deck.
func ParseState(tags []string) (State, error) {
	var s State
	for _, raw := range tags {
		t := Tag(strings.TrimSpace(raw))
		switch {
		case t == Redundant || t == Locked:
			if s.Modifier != "" {
				return State{}, fmt.Errorf("state %v has two modifiers", tags)
			}
			s.Modifier = t
		case baseTags[t]:
			if s.Tag != "" {
				return State{}, fmt.Errorf("state %v has two tags", tags)
			}
			s.Tag = t
		default:
			return State{}, fmt.Errorf("unknown state tag %q", raw)
		}
	}
	if s.Tag == "" {
		if s.Modifier != "" {
			return State{}, fmt.Errorf("state %v has a modifier but no tag", tags)
		}
		s.Tag = NotInDeck
	}
	return s, nil
}

// Classes returns the state's tags, modifier first.
func (s State) Classes() []string {
	tag := s.Tag
	if tag == "" {
		tag = NotInDeck
	}
	if s.Modifier != "" {
		return []string{string(s.Modifier), string(tag)}
	}
	return []string{string(tag)}
}

// String joins the classes with a space.
func (s State) String() string {
	return strings.Join(s.Classes(), " ")
}

// ClassString is the class attribute of an annotated word for this state.
func ClassString(s State) string {
	return "jpdb-word " + s.String()
}

// MarshalJSON encodes the state in the backend's list form.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Classes())
}

// UnmarshalJSON accepts the list form or null.
func (s *State) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	parsed, err := ParseState(tags)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
