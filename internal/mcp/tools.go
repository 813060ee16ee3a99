package mcp

import "github.com/mark3labs/mcp-go/mcp"

var annotateToolDef = mcp.NewTool("annotate_html",
	mcp.WithDescription("Annotate Japanese text in an HTML or markdown document with word boundaries, "+
		"furigana and vocabulary state. Returns the rewritten HTML. Pass keep=true to keep the document "+
		"live so later card actions restyle it."),
	mcp.WithString("html", mcp.Description("HTML document or fragment to annotate")),
	mcp.WithString("markdown", mcp.Description("Markdown to render and annotate, instead of html")),
	mcp.WithBoolean("preserve_original_nodes", mcp.Description("Keep replaced text as hidden tombstones")),
	mcp.WithBoolean("keep", mcp.Description("Register the annotated document as a live session")),
)

var cardActionToolDef = mcp.NewTool("card_action",
	mcp.WithDescription("Apply a learning action to a vocabulary card and restyle it in every live session."),
	mcp.WithNumber("vid", mcp.Required(), mcp.Description("Vocabulary id")),
	mcp.WithNumber("sid", mcp.Required(), mcp.Description("Spelling id")),
	mcp.WithString("action", mcp.Required(),
		mcp.Enum("add", "remove", "blacklist", "unblacklist", "never-forget", "review")),
	mcp.WithString("grade", mcp.Description("Review grade"), mcp.Enum("fail", "hard", "okay", "easy")),
)

var cardListToolDef = mcp.NewTool("card_list",
	mcp.WithDescription("List cards in the local deck, most recently updated first."),
	mcp.WithString("state", mcp.Description("Only cards in this learning state, e.g. known")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var deckImportToolDef = mcp.NewTool("deck_import",
	mcp.WithDescription("Import cards from a JSONL deck file into the local deck."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to a .jsonl deck file")),
	mcp.WithString("mode", mcp.Description("Collision handling (default skip)"), mcp.Enum("skip", "replace", "error")),
)

var deckExportToolDef = mcp.NewTool("deck_export",
	mcp.WithDescription("Export the local deck to a JSONL file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default ~/.breader/exports/deck-<timestamp>.jsonl)")),
)
