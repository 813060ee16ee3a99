package ops

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/max-kamps/jpd-breader-sub000/internal/annotate"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// MaxDocumentBytes bounds the size of an annotation input.
const MaxDocumentBytes = 4 << 20

// AnnotateInput contains parameters for the Annotate operation.
// Exactly one of HTML and Markdown must be set.
type AnnotateInput struct {
	HTML     string
	Markdown string
	// Preserve overrides config.PreserveOriginalNodes when set.
	Preserve *bool
	// Keep registers the session so later card actions restyle it.
	Keep bool
}

// AnnotateOutput contains the result of the Annotate operation.
type AnnotateOutput struct {
	SessionID string          `json:"session_id,omitempty"`
	HTML      string          `json:"html"`
	Report    annotate.Report `json:"report"`
	// Warnings names the paragraphs whose parse failed; they are left as written.
	Warnings []string `json:"warnings,omitempty"`
}

// Annotate parses the document, annotates every paragraph and returns the
// rewritten HTML. Paragraphs the backend failed on are reported as warnings;
// an alignment precondition violation or cancellation fails the call.
func Annotate(ctx context.Context, rt *Runtime, input AnnotateInput) (*AnnotateOutput, error) {
	src, err := documentSource(input)
	if err != nil {
		return nil, err
	}

	opts := rt.sessionOptions(input.Preserve)
	s, err := annotate.Parse(strings.NewReader(src), rt.Batcher, opts)
	if err != nil {
		return nil, err
	}

	rep, err := s.Annotate(ctx)
	var warnings []string
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errors.ErrPrecondition) {
			return nil, err
		}
		warnings = splitJoined(err)
	}

	out, err := s.HTML()
	if err != nil {
		return nil, err
	}

	output := &AnnotateOutput{HTML: out, Report: rep, Warnings: warnings}
	if input.Keep {
		output.SessionID = rt.Sessions.Add(s)
	}
	return output, nil
}

func documentSource(input AnnotateInput) (string, error) {
	hasHTML := strings.TrimSpace(input.HTML) != ""
	hasMarkdown := strings.TrimSpace(input.Markdown) != ""
	switch {
	case hasHTML && hasMarkdown:
		return "", errors.NewInvalidRequest("specify either html or markdown, not both")
	case !hasHTML && !hasMarkdown:
		return "", errors.NewInvalidRequest("html or markdown is required")
	}

	if len(input.HTML)+len(input.Markdown) > MaxDocumentBytes {
		return "", errors.NewInvalidRequest("document exceeds 4MiB")
	}
	if hasHTML {
		return input.HTML, nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(input.Markdown), &buf); err != nil {
		return "", errors.NewInvalidRequest("invalid markdown: " + err.Error())
	}
	return buf.String(), nil
}

// splitJoined flattens an errors.Join result into messages.
func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
