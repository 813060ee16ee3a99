package queue

import (
	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

// Request is one unit of backend work. The set of implementations is closed:
// ParseRequest and MutateRequest.
type Request interface {
	// Kind names the request for logs.
	Kind() string
	sealed()
}

// ParseRequest tokenizes texts.
type ParseRequest struct {
	Texts []string
}

// MutateRequest applies one user action to a card.
type MutateRequest struct {
	Mutation backend.Mutation
}

func (ParseRequest) Kind() string  { return "parse" }
func (MutateRequest) Kind() string { return "mutate" }

func (ParseRequest) sealed()  {}
func (MutateRequest) sealed() {}

// Result is the successful outcome of a request.
type Result struct {
	// Tokens is set for parse requests, parallel to the request's texts.
	Tokens [][]card.Token
	// Changes is set for mutate requests.
	Changes []card.StateChange
}
