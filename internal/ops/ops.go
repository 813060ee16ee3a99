// Package ops implements the operations every surface shares: the CLI, the
// MCP server and the HTTP server call these and only format the results.
package ops

import (
	"github.com/max-kamps/jpd-breader-sub000/internal/annotate"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/fragment"
	"github.com/max-kamps/jpd-breader-sub000/internal/queue"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// Runtime bundles what the annotation and card operations need.
type Runtime struct {
	Config   *config.Config
	Queue    *queue.Queue
	Batcher  *queue.Batcher
	Sessions *annotate.Registry
}

// NewRuntime wires a batcher and an empty session registry over q.
func NewRuntime(cfg *config.Config, q *queue.Queue) *Runtime {
	return &Runtime{
		Config:   cfg,
		Queue:    q,
		Batcher:  queue.NewBatcher(q, cfg.BatchWindow(), cfg.BatchMaxTexts),
		Sessions: annotate.NewRegistry(),
	}
}

func (rt *Runtime) sessionOptions(preserve *bool) annotate.Options {
	p := rt.Config.PreserveOriginalNodes
	if preserve != nil {
		p = *preserve
	}
	return annotate.Options{
		Exclude:               fragment.ExcludeClasses(rt.Config.ExcludeClasses...),
		PreserveOriginalNodes: p,
	}
}
