package deck

import (
	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

// transition returns the state a card moves to under m. Actions that do not
// apply to the current state leave it unchanged.
func transition(s card.State, m backend.Mutation) card.State {
	switch m.Action {
	case backend.ActionAdd:
		if s.Tag == card.NotInDeck {
			return card.Plain(card.New)
		}
	case backend.ActionRemove:
		return card.Plain(card.NotInDeck)
	case backend.ActionBlacklist:
		return card.Plain(card.Blacklisted)
	case backend.ActionUnblacklist:
		if s.Tag == card.Blacklisted {
			return card.Plain(card.NotInDeck)
		}
	case backend.ActionNeverForget:
		return card.State{Tag: card.NeverForget, Modifier: s.Modifier}
	case backend.ActionReview:
		return review(s, m.Grade)
	}
	return s
}

func review(s card.State, g backend.Grade) card.State {
	switch s.Tag {
	case card.Blacklisted, card.NeverForget, card.Suspended:
		return s
	}
	next := s.Tag
	switch g {
	case backend.GradeFail:
		next = card.Failed
	case backend.GradeHard:
		next = card.Learning
	case backend.GradeOkay:
		switch s.Tag {
		case card.Learning, card.Due, card.Known:
			next = card.Known
		default:
			next = card.Learning
		}
	case backend.GradeEasy:
		next = card.Known
	}
	return card.State{Tag: next, Modifier: s.Modifier}
}
