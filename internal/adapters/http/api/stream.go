package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/timeline"
	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// StreamDependencies defines the interface for render streams.
type StreamDependencies interface {
	Session(id string) (*service.Session, error)
	Subscribe(id string) (<-chan timeline.Frame, func(), error)
}

// StreamHandler pushes every rendered frame of a session over a WebSocket.
type StreamHandler struct {
	deps     StreamDependencies
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies, log logger.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleStream handles GET /timelines/{id}/stream requests. The first
// message is the current frame; the connection closes with the session.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.deps.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	frames, cancel, err := h.deps.Subscribe(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.log.Warn(r.Context(), "stream upgrade failed", logger.String("session", id), logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.AddStreamClients(1)
	defer metrics.AddStreamClients(-1)
	h.log.Debug(r.Context(), "stream opened", logger.String("session", id))

	closed := make(chan struct{})
	go readPump(conn, closed)

	if err := writeFrame(conn, sess.Timeline().Frame()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := writeFrame(conn, f); err != nil {
				h.log.Debug(r.Context(), "stream write failed", logger.String("session", id), logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f timeline.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// readPump discards client messages and reports when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
