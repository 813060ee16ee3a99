package web

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/ops"
)

// maxBodyBytes leaves room for the JSON envelope around a maximal document.
const maxBodyBytes = ops.MaxDocumentBytes + 64<<10

var errNoDeck = errors.NewInvalidRequest("the configured backend has no local deck")

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	rt  *ops.Runtime
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates handlers over rt. database may be nil.
func NewHandlers(rt *ops.Runtime, database *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{rt: rt, db: database, cfg: cfg}
}

type createSessionRequest struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Preserve *bool  `json:"preserve"`
}

type sessionSummary struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

type sessionDetail struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	HTML    string    `json:"html"`
}

type cardActionRequest struct {
	Action string `json:"action"`
	Grade  string `json:"grade"`
}

type applyStateRequest struct {
	Changes []card.StateChange `json:"changes"`
}

// HandleCreateSession handles POST /sessions: annotate a document and keep
// the session live so later card actions restyle it.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	out, err := ops.Annotate(r.Context(), h.rt, ops.AnnotateInput{
		HTML:     req.HTML,
		Markdown: req.Markdown,
		Preserve: req.Preserve,
		Keep:     true,
	})
	if err != nil {
		renderError(w, err)
		return
	}

	w.Header().Set("Location", "/sessions/"+out.SessionID)
	renderJSON(w, http.StatusCreated, out)
}

// HandleListSessions handles GET /sessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.rt.Sessions.IDs()
	items := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		s, err := h.rt.Sessions.Get(id)
		if err != nil {
			// removed since IDs was taken
			continue
		}
		items = append(items, sessionSummary{ID: id, Created: s.Created()})
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleGetSession handles GET /sessions/{id}. The current annotated HTML
// is returned as is, or wrapped in JSON when the client asks for it.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.rt.Sessions.Get(id)
	if err != nil {
		renderError(w, err)
		return
	}

	out, err := s.HTML()
	if err != nil {
		renderError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, sessionDetail{ID: id, Created: s.Created(), HTML: out})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// HandleDeleteSession handles DELETE /sessions/{id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.rt.Sessions.Remove(id) {
		renderError(w, errors.NewNotFound("session "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCardAction handles POST /cards/{vid}/{sid}/actions.
func (h *Handlers) HandleCardAction(w http.ResponseWriter, r *http.Request) {
	vid, err := parseIDParam(r, "vid")
	if err != nil {
		renderError(w, err)
		return
	}
	sid, err := parseIDParam(r, "sid")
	if err != nil {
		renderError(w, err)
		return
	}

	var req cardActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	out, err := ops.CardAction(r.Context(), h.rt, ops.CardActionInput{
		VID:    vid,
		SID:    sid,
		Action: req.Action,
		Grade:  req.Grade,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleApplyState handles POST /state: state changes made elsewhere are
// applied to every live session without a backend round trip.
func (h *Handlers) HandleApplyState(w http.ResponseWriter, r *http.Request) {
	var req applyStateRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	out, err := ops.ApplyState(h.rt, ops.ApplyStateInput{Changes: req.Changes})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleListCards handles GET /cards.
func (h *Handlers) HandleListCards(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		renderError(w, errNoDeck)
		return
	}

	out, err := ops.ListCards(r.Context(), h.db, ops.ListCardsInput{
		State:  r.URL.Query().Get("state"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleQueueStats handles GET /queue/stats.
func (h *Handlers) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.rt.Queue.Stats())
}

// decodeBody reads a size-limited JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid request body: " + err.Error())
	}
	return nil
}

// parseIDParam parses a positive integer path value.
func parseIDParam(r *http.Request, name string) (int64, error) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidRequest(name + " must be a positive integer")
	}
	return n, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}

// renderError writes err as a JSON error envelope with its mapped status.
// Internal errors are masked.
func renderError(w http.ResponseWriter, err error) {
	bErr := errors.As(err)
	message := bErr.Error()
	if bErr.Code == errors.ErrInternal {
		message = "an internal error occurred"
	}

	errorObj := map[string]any{
		"code":    string(bErr.Code),
		"message": message,
		"status":  bErr.Status,
	}
	if bErr.Code != errors.ErrInternal && bErr.Details != nil {
		errorObj["details"] = bErr.Details
	}
	renderJSON(w, bErr.Status, map[string]any{"error": errorObj})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}
