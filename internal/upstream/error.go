package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned before any network call when no credential is configured.
var ErrMissingAPIKey = errors.New("API key not configured")

// Error is a failed upstream call. Status is the upstream HTTP status, or 0 when
// the request never produced a response (transport failure, cancellation).
type Error struct {
	Status  int
	Payload json.RawMessage
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Message)
	}
	detail := e.Message
	if detail == "" {
		detail = string(bytes.TrimSpace(e.Payload))
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, detail)
}

// ResponseStatus is the status a relay should answer with.
func (e *Error) ResponseStatus() int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// ResponseBody renders the error as a JSON object with an "error" key.
// Upstream payloads that already carry an "error" key are forwarded as-is.
func (e *Error) ResponseBody() []byte {
	payload := bytes.TrimSpace(e.Payload)
	if len(payload) > 0 {
		if json.Valid(payload) {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(payload, &obj); err == nil {
				if _, ok := obj["error"]; ok {
					return append([]byte(nil), payload...)
				}
			}
			return mustMarshal(map[string]json.RawMessage{"error": payload})
		}
		return mustMarshal(map[string]string{"error": string(payload)})
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.ResponseStatus())
	}
	return mustMarshal(map[string]string{"error": msg})
}

// AsError normalizes errors from the HTTP transport and the OpenAI client into *Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}

	// RequestError goes first: its Err can be a partly decoded APIError with status 0.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		out := &Error{Status: reqErr.HTTPStatusCode, Payload: json.RawMessage(reqErr.Body)}
		if len(bytes.TrimSpace(reqErr.Body)) == 0 {
			out.Message = reqErr.Error()
			if reqErr.Err != nil {
				out.Message = reqErr.Err.Error()
			}
		}
		return out
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		payload, mErr := json.Marshal(map[string]any{"error": apiErr})
		if mErr != nil {
			payload = nil
		}
		return &Error{Status: apiErr.HTTPStatusCode, Payload: payload, Message: apiErr.Message}
	}

	return &Error{Message: err.Error()}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return b
}
