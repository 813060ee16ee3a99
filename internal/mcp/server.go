package mcp

import (
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"annotate_html": {
		def:     annotateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnnotate },
	},
	"card_action": {
		def:     cardActionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCardAction },
	},
	"card_list": {
		def:     cardListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCardList },
	},
	"deck_import": {
		def:     deckImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeckImport },
	},
	"deck_export": {
		def:     deckExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeckExport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the breader tools registered, minus
// those listed in cfg.DisabledTools. database is nil when the configured
// backend keeps no local deck.
func NewServer(rt *ops.Runtime, database *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"breader",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(rt, database, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(rt *ops.Runtime, database *sql.DB, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(rt, database, cfg, version))
}
