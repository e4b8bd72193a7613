package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// wsSubscriber delivers frames over a WebSocket connection.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return websocket.Message.Send(s.conn, string(data))
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}

// HandleWebSocket returns the handler for the publish channel. Origins are not
// checked; the viewer may be served from anywhere.
func (h *Hub) HandleWebSocket() http.Handler {
	return websocket.Server{Handler: h.serveWebSocket}
}

func (h *Hub) serveWebSocket(conn *websocket.Conn) {
	sub := &wsSubscriber{id: uuid.NewString(), conn: conn}
	if err := h.Register(sub); err != nil {
		_ = conn.Close()
		return
	}
	defer h.Unregister(sub.id)

	// Viewers never send anything meaningful; read only to detect close
	for {
		var buf string
		if err := websocket.Message.Receive(conn, &buf); err != nil {
			return
		}
	}
}

// sseSubscriber delivers frames as Server-Sent Events.
type sseSubscriber struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	mu      sync.Mutex
	once    sync.Once
}

func newSSESubscriber(w http.ResponseWriter) (*sseSubscriber, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseSubscriber{
		id:      uuid.NewString(),
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

func (s *sseSubscriber) ID() string { return s.id }

func (s *sseSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return http.ErrHandlerTimeout
	default:
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close never blocks: a send stuck on a slow client must not stall the
// broadcast that unregisters it.
func (s *sseSubscriber) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// finish marks the subscriber closed and waits out any write in flight.
// Sends that start afterwards see done and leave the writer alone.
func (s *sseSubscriber) finish() {
	_ = s.Close()
	s.mu.Lock()
	s.mu.Unlock() //nolint:staticcheck
}

// HandleSSE streams the publish channel as text/event-stream.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, err := newSSESubscriber(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.Register(sub); err != nil {
		return
	}
	// The writer is invalid once this handler returns
	defer sub.finish()
	defer h.Unregister(sub.id)

	select {
	case <-r.Context().Done():
	case <-sub.done:
	}
}
