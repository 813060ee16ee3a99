package mcp

import (
	"bytes"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// decode maps tool arguments onto T. Arguments the tool does not declare
// and values of the wrong JSON type are rejected as invalid requests.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, errors.NewInvalidRequest("arguments are not JSON: " + err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, errors.NewInvalidRequest("invalid arguments: " + err.Error())
	}
	return out, nil
}
