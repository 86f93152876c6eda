package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Ack is the reply sent back over the socket for every processed message.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// WebSocketSource accepts result messages over a WebSocket connection. Each
// connection is bound to one student token; reports naming another token are
// rejected and never applied.
type WebSocketSource struct {
	handler Handler
	mu      sync.RWMutex
}

// NewWebSocketSource creates a WebSocket ingestion source. It is passive:
// connections arrive through ServeHTTP on the server's mux.
func NewWebSocketSource() *WebSocketSource {
	return &WebSocketSource{}
}

func (s *WebSocketSource) Start(_ context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

func (s *WebSocketSource) Stop() error {
	return nil
}

func (s *WebSocketSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token query parameter is required", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		http.Error(w, "ingestion not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	slog.Info("result socket connected", "token", token)
	ctx := r.Context()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return // connection closed
		}

		report, err := ParseMessage(data)
		if errors.Is(err, ErrNotResultMessage) {
			continue
		}
		if err != nil {
			writeAck(ctx, conn, Ack{OK: false, Message: err.Error()})
			continue
		}
		if report.Token != token {
			slog.Warn("rejecting report for another token",
				"connection_token", token, "report_token", report.Token)
			writeAck(ctx, conn, Ack{OK: false, Message: ErrTokenMismatch.Error()})
			continue
		}

		if err := handler(ctx, report); err != nil {
			writeAck(ctx, conn, Ack{OK: false, Message: err.Error()})
			continue
		}
		writeAck(ctx, conn, Ack{OK: true, Message: "Результат получен!"})
	}
}

func writeAck(ctx context.Context, conn *websocket.Conn, ack Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("writing ack failed", "error", err)
	}
}
