package notifier

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHandler streams hub events as JSON text frames. Observers only
// listen; anything they send is discarded.
type WebSocketHandler struct {
	hub      *Hub
	bufSize  int
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *Hub, bufSize int) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		bufSize: bufSize,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeTask serves /ws/tasks/{taskID}.
func (h *WebSocketHandler) ServeTask(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "taskID"))
}

// ServeAll serves /ws/tasks.
func (h *WebSocketHandler) ServeAll(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, AllTasks)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id, events := h.hub.Subscribe(topic, h.bufSize)
	s := &wsSession{conn: conn, events: events, done: make(chan struct{})}
	slog.DebugContext(r.Context(), "observer connected", "topic", topic, "subscriber_id", id)

	go s.readPump()
	s.writePump()

	h.hub.Unsubscribe(topic, id)
	slog.DebugContext(r.Context(), "observer disconnected", "topic", topic, "subscriber_id", id)
}

type wsSession struct {
	conn      *websocket.Conn
	events    <-chan *Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsSession) readPump() {
	defer s.close()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.events:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to marshal event", "error", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
