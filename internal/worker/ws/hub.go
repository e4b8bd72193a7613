// Package ws fans daemon messages out to connected viewers over WebSocket
// and Server-Sent Events.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/pkg/models"
)

const (
	// WriteTimeout bounds a single send so stale connections cannot stall a broadcast.
	WriteTimeout = 2 * time.Second

	// WelcomeMessage is the text of the connection frame.
	WelcomeMessage = "Connected to feels daemon"
)

// ErrSendTimeout is reported when a send exceeds WriteTimeout.
var ErrSendTimeout = errors.New("send timed out")

// Subscriber is one connected viewer.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Welcome is the payload of the connection frame.
type Welcome struct {
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
}

// Hub manages subscribers and message broadcasting.
type Hub struct {
	subs map[string]Subscriber
	mu   sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
	}
}

// Register sends the welcome frame to sub and then adds it to the broadcast
// targets. A subscriber that cannot take the welcome is not registered.
func (h *Hub) Register(sub Subscriber) error {
	welcome, err := json.Marshal(models.NewMessage(models.MessageConnection, Welcome{
		Message:  WelcomeMessage,
		ClientID: sub.ID(),
	}))
	if err != nil {
		return err
	}
	if err := sub.Send(welcome); err != nil {
		return err
	}

	h.mu.Lock()
	h.subs[sub.ID()] = sub
	count := len(h.subs)
	h.mu.Unlock()

	log.Debug().
		Str("clientId", sub.ID()).
		Int("totalClients", count).
		Msg("Subscriber connected")
	return nil
}

// Unregister removes and closes the subscriber with the given id.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	sub, exists := h.subs[id]
	if exists {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if !exists {
		return
	}
	_ = sub.Close()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", count).
		Msg("Subscriber disconnected")
}

// Broadcast serializes msg once and delivers it to every current subscriber.
// Subscribers whose send fails are removed once every send has finished.
// It returns the number of successful deliveries.
func (h *Hub) Broadcast(msg any) int {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal broadcast message")
		return 0
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return 0
	}

	// Dead subscribers are collected and removed after the pass
	deadCh := make(chan string, len(subs))
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			if err := sendWithTimeout(s, data); err != nil {
				log.Debug().
					Str("clientId", s.ID()).
					Err(err).
					Msg("Failed to send to subscriber, marking for removal")
				deadCh <- s.ID()
			}
		}(sub)
	}

	wg.Wait()
	close(deadCh)

	dead := 0
	for id := range deadCh {
		dead++
		h.Unregister(id)
	}
	return len(subs) - dead
}

func sendWithTimeout(s Subscriber, data []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.Send(data)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(WriteTimeout):
		return ErrSendTimeout
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

// Heartbeat broadcasts the result of build every interval while subscribers
// are connected. It returns when ctx is cancelled.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration, build func(ctx context.Context) (any, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			msg, err := build(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to build heartbeat message")
				continue
			}
			h.Broadcast(msg)
		}
	}
}
