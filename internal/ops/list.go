package ops

import (
	"context"
	"database/sql"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// ListCardsInput contains parameters for the ListCards operation.
type ListCardsInput struct {
	State  string // optional base tag filter, e.g. "known"
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListCardsOutput contains the result of the ListCards operation.
type ListCardsOutput struct {
	Items      []*card.Card `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// ListCards pages through the local deck.
func ListCards(ctx context.Context, database *sql.DB, input ListCardsInput) (*ListCardsOutput, error) {
	var tag card.Tag
	if input.State != "" {
		st, err := card.ParseState([]string{input.State})
		if err != nil || st.Modifier != "" {
			return nil, errors.NewInvalidRequest("state must be a single learning-state tag, got " + input.State)
		}
		tag = st.Tag
	}

	limit, offset := pageBounds(input.Limit, input.Offset)
	cards, total, err := db.ListCards(ctx, database, tag, limit, offset)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []*card.Card{}
	}

	return &ListCardsOutput{
		Items: cards,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(cards) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
