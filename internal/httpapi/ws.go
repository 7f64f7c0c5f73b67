package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicerelay/internal/protocol"
)

const wsIdleTimeout = 120 * time.Second

// handleChatWS relays chat_message frames one at a time over a websocket.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.HasAPIKey() {
		respondError(w, http.StatusInternalServerError, msgAPIKeyNotConfigured)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	ctx := r.Context()

	conn.SetReadLimit(maxChatBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("chat ws %s closed: %v", connID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			body := []byte(`{"error":"invalid client message"}`)
			if s.writeFrame(conn, protocol.NewErrorEvent("", http.StatusBadRequest, body)) != nil {
				return
			}
			continue
		}
		msg, ok := parsed.(protocol.ChatMessage)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(msg.Type))

		body, status, errBody := s.relayChat(ctx, msg.Message)
		var out any = protocol.ChatResponse{Type: protocol.TypeChatResponse, ID: msg.ID, Payload: body}
		if errBody != nil {
			out = protocol.NewErrorEvent(msg.ID, status, errBody)
		}
		if err := s.writeFrame(conn, out); err != nil {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}
	switch f := frame.(type) {
	case protocol.ChatResponse:
		s.metrics.ObserveWSMessage("outbound", string(f.Type))
	case protocol.ErrorEvent:
		s.metrics.ObserveWSMessage("outbound", string(f.Type))
	}
	return nil
}
