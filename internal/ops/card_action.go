package ops

import (
	"context"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/queue"
)

// CardActionInput contains parameters for the CardAction operation.
type CardActionInput struct {
	VID    int64
	SID    int64
	Action string // add, remove, blacklist, unblacklist, never-forget, review
	Grade  string // reviews only: fail, hard, okay, easy
}

// CardActionOutput contains the result of the CardAction operation.
type CardActionOutput struct {
	Seq      uint64             `json:"seq"`
	Changes  []card.StateChange `json:"changes"`
	Restyled int                `json:"restyled"`
}

// CardAction queues one mutation behind any outstanding parses, waits for it
// and restyles the card in every live session.
func CardAction(ctx context.Context, rt *Runtime, input CardActionInput) (*CardActionOutput, error) {
	m := backend.Mutation{
		Key:    card.Key{VID: input.VID, SID: input.SID},
		Action: backend.Action(input.Action),
		Grade:  backend.Grade(input.Grade),
	}
	if err := m.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	h := rt.Queue.Enqueue(ctx, queue.MutateRequest{Mutation: m})
	res, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}

	changes := res.Changes
	if changes == nil {
		changes = []card.StateChange{}
	}
	return &CardActionOutput{
		Seq:      h.Seq(),
		Changes:  changes,
		Restyled: rt.Sessions.Broadcast(changes),
	}, nil
}

// ApplyStateInput carries state changes reported from outside the queue,
// e.g. a review done in another client.
type ApplyStateInput struct {
	Changes []card.StateChange
}

// ApplyStateOutput contains the result of the ApplyState operation.
type ApplyStateOutput struct {
	Restyled int `json:"restyled"`
}

// ApplyState fans state changes out to every live session without touching
// the backend.
func ApplyState(rt *Runtime, input ApplyStateInput) (*ApplyStateOutput, error) {
	if len(input.Changes) == 0 {
		return nil, errors.NewInvalidRequest("changes must not be empty")
	}
	return &ApplyStateOutput{Restyled: rt.Sessions.Broadcast(input.Changes)}, nil
}
