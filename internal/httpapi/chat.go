package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/voicerelay/internal/policy"
	"github.com/ent0n29/voicerelay/internal/relay"
	"github.com/ent0n29/voicerelay/internal/reliability"
	"github.com/ent0n29/voicerelay/internal/upstream"
)

const maxChatBodyBytes = 1 << 20

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.HasAPIKey() {
		respondError(w, http.StatusInternalServerError, msgAPIKeyNotConfigured)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	body, status, errBody := s.relayChat(r.Context(), req.Message)
	if errBody != nil {
		respondRawJSON(w, status, errBody)
		return
	}
	respondRawJSON(w, http.StatusOK, body)
}

// relayChat runs one chat relay and returns either the upstream body or a
// rendered error body with the status to answer with.
func (s *Server) relayChat(ctx context.Context, message string) ([]byte, int, []byte) {
	if s.chat == nil {
		return nil, http.StatusNotImplemented, []byte(`{"error":"chat relay not configured"}`)
	}

	started := time.Now()
	body, err := s.chat.Relay(ctx, message)
	s.metrics.ObserveStage(relay.StageChat, time.Since(started), err)
	if err == nil {
		return body, http.StatusOK, nil
	}

	if errors.Is(err, upstream.ErrMissingAPIKey) {
		return nil, http.StatusInternalServerError, []byte(`{"error":"` + msgAPIKeyNotConfigured + `"}`)
	}
	ue := upstream.AsError(err)
	detail, _ := policy.RedactForLog(ue.Error())
	log.Printf("chat relay failed: class=%s retryable=%t err=%s", reliability.Class(ue.Status), reliability.IsRetryableHTTPStatus(ue.Status), policy.Clip(detail, 400))
	return nil, ue.ResponseStatus(), ue.ResponseBody()
}
