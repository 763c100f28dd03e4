package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/davin/easel/pkg/scene"
)

// WebSocketBus connects a participant to a remote hub over a websocket.
// Envelopes published here are sent to the hub; envelopes relayed by the hub
// are delivered to subscribers. The hub never echoes a sender's own
// envelopes back, so loopback prevention holds end to end.
type WebSocketBus struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu stdsync.Mutex

	mu       stdsync.RWMutex
	handlers []func(env scene.Envelope)
	closed   bool

	done chan struct{}
}

// DialBus connects to a hub websocket endpoint and starts the read pump.
func DialBus(ctx context.Context, url string, logger zerolog.Logger) (*WebSocketBus, error) {
	if url == "" {
		return nil, fmt.Errorf("hub URL is required")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial hub: %w", err)
	}

	b := &WebSocketBus{
		conn:   conn,
		logger: logger.With().Str("component", "wsbus").Str("hub", url).Logger(),
		done:   make(chan struct{}),
	}

	go b.readPump()
	return b, nil
}

// Publish sends an envelope to the hub.
func (b *WebSocketBus) Publish(env scene.Envelope) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send envelope: %w", err)
	}
	return nil
}

// Subscribe registers a handler for envelopes relayed by the hub.
func (b *WebSocketBus) Subscribe(handler func(env scene.Envelope)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

func (b *WebSocketBus) readPump() {
	defer close(b.done)

	for {
		_, message, err := b.conn.ReadMessage()
		if err != nil {
			b.mu.RLock()
			closed := b.closed
			b.mu.RUnlock()
			if !closed {
				b.logger.Warn().Err(err).Msg("Hub connection lost")
			}
			return
		}

		var env scene.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			b.logger.Warn().Err(err).Msg("Dropping malformed message from hub")
			continue
		}

		b.mu.RLock()
		handlers := make([]func(env scene.Envelope), len(b.handlers))
		copy(handlers, b.handlers)
		b.mu.RUnlock()

		for _, handler := range handlers {
			handler(env)
		}
	}
}

// Close shuts the connection down and waits for the read pump to exit.
func (b *WebSocketBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.conn.Close()
	<-b.done
	return err
}
