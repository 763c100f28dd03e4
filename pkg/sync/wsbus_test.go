package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davin/easel/pkg/scene"
)

// echoHub accepts one websocket connection and reflects every message so
// the bus's read and write paths can both be exercised.
func echoHub(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, message); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestDialBus(t *testing.T) {
	t.Run("should require a URL", func(t *testing.T) {
		_, err := DialBus(context.Background(), "", zerolog.Nop())

		assert.Error(t, err)
	})

	t.Run("should fail when the hub is unreachable", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_, err := DialBus(ctx, "ws://127.0.0.1:1/ws", zerolog.Nop())

		assert.Error(t, err)
	})
}

func TestWebSocketBus(t *testing.T) {
	t.Run("should deliver hub messages to subscribers", func(t *testing.T) {
		bus, err := DialBus(context.Background(), echoHub(t), zerolog.Nop())
		require.NoError(t, err)
		defer bus.Close()

		received := make(chan scene.Envelope, 1)
		bus.Subscribe(func(env scene.Envelope) {
			received <- env
		})

		require.NoError(t, bus.Publish(scene.Envelope{
			Type:    scene.TypeRemove,
			Payload: json.RawMessage(`{"id":"rect-1"}`),
		}))

		select {
		case env := <-received:
			assert.Equal(t, scene.TypeRemove, env.Type)
			assert.JSONEq(t, `{"id":"rect-1"}`, string(env.Payload))
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber never received envelope")
		}
	})

	t.Run("should refuse publish after close", func(t *testing.T) {
		bus, err := DialBus(context.Background(), echoHub(t), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, bus.Close())

		err = bus.Publish(scene.Envelope{Type: scene.TypeClearAll})

		assert.ErrorIs(t, err, ErrBusClosed)
	})

	t.Run("should allow close twice", func(t *testing.T) {
		bus, err := DialBus(context.Background(), echoHub(t), zerolog.Nop())
		require.NoError(t, err)

		assert.NoError(t, bus.Close())
		assert.NoError(t, bus.Close())
	})
}
