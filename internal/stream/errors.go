package stream

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sokinpui/sitepatch/model"
)

// ErrorMarker prefixes the JSON error payload the proxy appends when the
// upstream generation fails.
const ErrorMarker = "__ERROR__:"

// ModelNote is the sentence the proxy emits after falling back to another model.
const ModelNote = "_Note: The selected model was not available. Switched to"

var switchedModel = regexp.MustCompile("Switched to `([^`]+)`")

// ExtractStreamError reports the error payload carried in buffer. A payload
// whose JSON has not fully arrived, or whose isError flag is false, is not an
// error yet.
func ExtractStreamError(buffer string) (*model.StreamError, bool) {
	i := strings.Index(buffer, ErrorMarker)
	if i == -1 {
		return nil, false
	}
	payload := buffer[i+len(ErrorMarker):]
	if nl := strings.IndexByte(payload, '\n'); nl != -1 {
		payload = payload[:nl]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, false
	}

	var e model.StreamError
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, false
	}
	if !e.IsError {
		return nil, false
	}
	return &e, true
}

// ExtractSwitchedModel returns the model id named by the fallback note once
// its closing backtick has arrived.
func ExtractSwitchedModel(buffer string) (string, bool) {
	i := strings.Index(buffer, ModelNote)
	if i == -1 {
		return "", false
	}
	m := switchedModel.FindStringSubmatch(buffer[i:])
	if m == nil {
		return "", false
	}
	id := strings.TrimSpace(m[1])
	return id, id != ""
}

// parseable returns the part of buffer the parser may see: everything before
// the error marker, if any.
func parseable(buffer string) string {
	if i := strings.Index(buffer, ErrorMarker); i != -1 {
		return buffer[:i]
	}
	return buffer
}
