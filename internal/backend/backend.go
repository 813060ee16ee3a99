// Package backend defines what the request queue executes against: a
// tokenizer that resolves text to cards, and a store of learning state.
package backend

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

// ErrNoResults is returned by Parse when the backend found nothing to
// tokenize. The queue treats it as success with empty token lists.
var ErrNoResults = stderrors.New("backend: no results")

// Backend is a tokenizer plus vocabulary store.
//
// Every call reports the delay the caller must wait before issuing the next
// request. Implementations need not be safe for concurrent use: the queue
// runs one request at a time.
type Backend interface {
	// Parse tokenizes each text independently. The outer result slice is
	// parallel to texts; token offsets are UTF-16 code units into their text.
	Parse(ctx context.Context, texts []string) ([][]card.Token, time.Duration, error)

	// Mutate applies one user action and returns the resulting state changes.
	Mutate(ctx context.Context, m Mutation) ([]card.StateChange, time.Duration, error)
}

// Action is a user action on a card.
type Action string

const (
	ActionAdd         Action = "add"
	ActionRemove      Action = "remove"
	ActionBlacklist   Action = "blacklist"
	ActionUnblacklist Action = "unblacklist"
	ActionNeverForget Action = "never-forget"
	ActionReview      Action = "review"
)

// Grade is the recall grade of a review.
type Grade string

const (
	GradeFail Grade = "fail"
	GradeHard Grade = "hard"
	GradeOkay Grade = "okay"
	GradeEasy Grade = "easy"
)

// Mutation is the payload of a mutate request.
type Mutation struct {
	Key    card.Key `json:"key"`
	Action Action   `json:"action"`
	// Grade is set for reviews only.
	Grade Grade `json:"grade,omitempty"`
}

// Validate checks the action/grade combination.
func (m Mutation) Validate() error {
	switch m.Action {
	case ActionAdd, ActionRemove, ActionBlacklist, ActionUnblacklist, ActionNeverForget:
		if m.Grade != "" {
			return fmt.Errorf("action %q takes no grade", m.Action)
		}
	case ActionReview:
		switch m.Grade {
		case GradeFail, GradeHard, GradeOkay, GradeEasy:
		default:
			return fmt.Errorf("review needs a grade of fail, hard, okay or easy, got %q", m.Grade)
		}
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

// String renders the mutation for logs.
func (m Mutation) String() string {
	if m.Grade != "" {
		return fmt.Sprintf("%s %s (%s)", m.Action, m.Key, m.Grade)
	}
	return fmt.Sprintf("%s %s", m.Action, m.Key)
}
