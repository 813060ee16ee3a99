// Package jpdb is a backend speaking the jpdb.io v1 HTTP API.
package jpdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// Name identifies this backend in errors and logs.
const Name = "jpdb"

// Delay is the pause the API's fair-use policy asks for between requests.
const Delay = 200 * time.Millisecond

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// MiningDeckID is the deck "add" and "remove" act on.
	MiningDeckID int
	Timeout      time.Duration
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://jpdb.io/api/v1"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// Client implements backend.Backend.
type Client struct {
	base   string
	token  string
	deckID int
	do     func(*http.Request) (*http.Response, error)
}

var _ backend.Backend = (*Client)(nil)

// New returns a client. A token is required.
func New(opts Options) (*Client, error) {
	opts.defaults()
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.NewInvalidRequest("jpdb: missing api token")
	}
	hc := &http.Client{Timeout: opts.Timeout}
	return &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		token:  opts.Token,
		deckID: opts.MiningDeckID,
		do:     hc.Do,
	}, nil
}

var (
	tokenFields      = []string{"vocabulary_index", "position", "length", "furigana"}
	vocabularyFields = []string{"vid", "sid", "rid", "spelling", "reading", "frequency_rank", "meanings", "card_state"}
)

type parseRequest struct {
	Text                   []string `json:"text"`
	TokenFields            []string `json:"token_fields"`
	VocabularyFields       []string `json:"vocabulary_fields"`
	PositionLengthEncoding string   `json:"position_length_encoding"`
}

type parseResponse struct {
	// tokens[text][token] = [vocabulary_index, position, length, furigana]
	Tokens [][][]json.RawMessage `json:"tokens"`
	// vocabulary[i] = vocabularyFields in order
	Vocabulary [][]json.RawMessage `json:"vocabulary"`
}

// Parse tokenizes texts with /parse.
func (c *Client) Parse(ctx context.Context, texts []string) ([][]card.Token, time.Duration, error) {
	if strings.TrimSpace(strings.Join(texts, "")) == "" {
		return nil, Delay, backend.ErrNoResults
	}
	var resp parseResponse
	err := c.call(ctx, "/parse", parseRequest{
		Text:                   texts,
		TokenFields:            tokenFields,
		VocabularyFields:       vocabularyFields,
		PositionLengthEncoding: "utf16",
	}, &resp)
	if err != nil {
		return nil, Delay, err
	}

	cards := make([]*card.Card, len(resp.Vocabulary))
	for i, v := range resp.Vocabulary {
		c, err := decodeVocabulary(v)
		if err != nil {
			return nil, Delay, errors.NewBackend(Name, fmt.Errorf("vocabulary %d: %w", i, err))
		}
		cards[i] = c
	}

	if len(resp.Tokens) != len(texts) {
		return nil, Delay, errors.NewBackend(Name, fmt.Errorf("got %d token lists for %d texts", len(resp.Tokens), len(texts)))
	}
	out := make([][]card.Token, len(texts))
	for i, list := range resp.Tokens {
		for j, raw := range list {
			t, err := decodeToken(raw, cards)
			if err != nil {
				return nil, Delay, errors.NewBackend(Name, fmt.Errorf("text %d token %d: %w", i, j, err))
			}
			out[i] = append(out[i], t)
		}
	}
	return out, Delay, nil
}

func decodeVocabulary(fields []json.RawMessage) (*card.Card, error) {
	if len(fields) != len(vocabularyFields) {
		return nil, fmt.Errorf("want %d fields, got %d", len(vocabularyFields), len(fields))
	}
	var (
		c     card.Card
		state []string
	)
	targets := []any{&c.VID, &c.SID, &c.RID, &c.Spelling, &c.Reading, &c.FrequencyRank, &c.Meanings, &state}
	for i, t := range targets {
		if err := json.Unmarshal(fields[i], t); err != nil {
			return nil, fmt.Errorf("%s: %w", vocabularyFields[i], err)
		}
	}
	s, err := card.ParseState(state)
	if err != nil {
		return nil, err
	}
	c.State = s
	return &c, nil
}

func decodeToken(fields []json.RawMessage, cards []*card.Card) (card.Token, error) {
	if len(fields) != len(tokenFields) {
		return card.Token{}, fmt.Errorf("want %d fields, got %d", len(tokenFields), len(fields))
	}
	var vocab, pos, length int
	for i, t := range []*int{&vocab, &pos, &length} {
		if err := json.Unmarshal(fields[i], t); err != nil {
			return card.Token{}, fmt.Errorf("%s: %w", tokenFields[i], err)
		}
	}
	if vocab < 0 || vocab >= len(cards) {
		return card.Token{}, fmt.Errorf("vocabulary index %d out of range", vocab)
	}
	furigana, err := decodeFurigana(fields[3])
	if err != nil {
		return card.Token{}, err
	}
	return card.NewToken(pos, pos+length, cards[vocab], furigana), nil
}

// decodeFurigana reads null or a list whose items are either a plain string
// or a [base, reading] pair.
func decodeFurigana(raw json.RawMessage) ([]card.Ruby, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("furigana: %w", err)
	}
	if items == nil {
		return nil, nil
	}
	out := make([]card.Ruby, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			out = append(out, card.Ruby{Base: s, Reading: s})
			continue
		}
		var pair []string
		if err := json.Unmarshal(it, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("furigana item %s is neither a string nor a pair", it)
		}
		out = append(out, card.Ruby{Base: pair[0], Reading: pair[1]})
	}
	return out, nil
}

type deckRequest struct {
	ID         any        `json:"id"`
	Vocabulary [][2]int64 `json:"vocabulary"`
}

type reviewRequest struct {
	VID   int64  `json:"vid"`
	SID   int64  `json:"sid"`
	Grade string `json:"grade"`
}

type lookupRequest struct {
	List   [][2]int64 `json:"list"`
	Fields []string   `json:"fields"`
}

type lookupResponse struct {
	VocabularyInfo [][]json.RawMessage `json:"vocabulary_info"`
}

// Mutate applies m and reads the card's resulting state back.
func (c *Client) Mutate(ctx context.Context, m backend.Mutation) ([]card.StateChange, time.Duration, error) {
	if err := m.Validate(); err != nil {
		return nil, Delay, errors.NewInvalidRequest(err.Error())
	}
	pair := [][2]int64{{m.Key.VID, m.Key.SID}}

	var err error
	switch m.Action {
	case backend.ActionAdd:
		err = c.call(ctx, "/add-to-deck", deckRequest{ID: c.deckID, Vocabulary: pair}, nil)
	case backend.ActionRemove:
		err = c.call(ctx, "/remove-from-deck", deckRequest{ID: c.deckID, Vocabulary: pair}, nil)
	case backend.ActionBlacklist:
		err = c.call(ctx, "/add-to-deck", deckRequest{ID: "blacklist", Vocabulary: pair}, nil)
	case backend.ActionUnblacklist:
		err = c.call(ctx, "/remove-from-deck", deckRequest{ID: "blacklist", Vocabulary: pair}, nil)
	case backend.ActionNeverForget:
		err = c.call(ctx, "/add-to-deck", deckRequest{ID: "never-forget", Vocabulary: pair}, nil)
	case backend.ActionReview:
		err = c.call(ctx, "/review", reviewRequest{VID: m.Key.VID, SID: m.Key.SID, Grade: string(m.Grade)}, nil)
	}
	if err != nil {
		return nil, Delay, err
	}

	var resp lookupResponse
	if err := c.call(ctx, "/lookup-vocabulary", lookupRequest{List: pair, Fields: []string{"card_state"}}, &resp); err != nil {
		return nil, Delay, err
	}
	if len(resp.VocabularyInfo) != 1 || len(resp.VocabularyInfo[0]) != 1 {
		return nil, Delay, errors.NewBackend(Name, fmt.Errorf("lookup returned %d entries", len(resp.VocabularyInfo)))
	}
	var tags []string
	if err := json.Unmarshal(resp.VocabularyInfo[0][0], &tags); err != nil {
		return nil, Delay, errors.NewBackend(Name, fmt.Errorf("card_state: %w", err))
	}
	state, err := card.ParseState(tags)
	if err != nil {
		return nil, Delay, errors.NewBackend(Name, err)
	}
	return []card.StateChange{{Key: m.Key, State: state}}, Delay, nil
}

type apiError struct {
	Code    string `json:"error"`
	Message string `json:"error_message"`
}

// call POSTs body to path and decodes the JSON response into out, when set.
// Non-2xx responses become backend errors carrying the API's message.
func (c *Client) call(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewBackend(Name, fmt.Errorf("%s: %w", path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return errors.NewBackend(Name, fmt.Errorf("%s: read body: %w", path, err))
	}
	if resp.StatusCode/100 != 2 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return errors.NewBackend(Name, fmt.Errorf("%s: %s", path, apiErr.Message))
		}
		return errors.NewBackend(Name, fmt.Errorf("%s: HTTP %d", path, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewBackend(Name, fmt.Errorf("%s: decode: %w", path, err))
	}
	return nil
}
