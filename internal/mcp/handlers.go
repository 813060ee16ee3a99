package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	rt  *ops.Runtime
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(rt *ops.Runtime, database *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{rt: rt, db: database, cfg: cfg}
}

// AnnotateRequest represents the arguments for annotate_html.
type AnnotateRequest struct {
	HTML                  string `json:"html,omitempty"`
	Markdown              string `json:"markdown,omitempty"`
	PreserveOriginalNodes *bool  `json:"preserve_original_nodes,omitempty"`
	Keep                  bool   `json:"keep,omitempty"`
}

// CardActionRequest represents the arguments for card_action.
type CardActionRequest struct {
	VID    int64  `json:"vid"`
	SID    int64  `json:"sid"`
	Action string `json:"action"`
	Grade  string `json:"grade,omitempty"`
}

// CardListRequest represents the arguments for card_list.
type CardListRequest struct {
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DeckImportRequest represents the arguments for deck_import.
type DeckImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// DeckExportRequest represents the arguments for deck_export.
type DeckExportRequest struct {
	Path string `json:"path,omitempty"`
}

// HandleAnnotate handles the annotate_html tool call.
func (h *Handlers) HandleAnnotate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnnotateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Annotate(ctx, h.rt, ops.AnnotateInput{
		HTML:     input.HTML,
		Markdown: input.Markdown,
		Preserve: input.PreserveOriginalNodes,
		Keep:     input.Keep,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCardAction handles the card_action tool call.
func (h *Handlers) HandleCardAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CardActionRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.CardAction(ctx, h.rt, ops.CardActionInput{
		VID:    input.VID,
		SID:    input.SID,
		Action: input.Action,
		Grade:  input.Grade,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCardList handles the card_list tool call.
func (h *Handlers) HandleCardList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CardListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if h.db == nil {
		return errorResult(errNoDeck), nil
	}

	result, err := ops.ListCards(ctx, h.db, ops.ListCardsInput{
		State:  input.State,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDeckImport handles the deck_import tool call.
func (h *Handlers) HandleDeckImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeckImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if h.db == nil {
		return errorResult(errNoDeck), nil
	}

	result, err := ops.ImportDeck(ctx, h.db, h.cfg, ops.ImportDeckInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDeckExport handles the deck_export tool call.
func (h *Handlers) HandleDeckExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeckExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if h.db == nil {
		return errorResult(errNoDeck), nil
	}

	result, err := ops.ExportDeck(ctx, h.db, h.cfg, ops.ExportDeckInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

var errNoDeck = errors.NewInvalidRequest("the configured backend keeps no local deck")

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var bErr *errors.BreaderError
	if stderrors.As(err, &bErr) {
		errorObj := map[string]any{
			"code":    bErr.Code,
			"message": err.Error(),
			"status":  bErr.Status,
		}
		if bErr.Code != errors.ErrInternal && bErr.Details != nil {
			errorObj["details"] = bErr.Details
		}
		if bErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
