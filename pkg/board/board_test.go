package board

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davin/easel/pkg/model"
	"github.com/davin/easel/pkg/runqueue"
	"github.com/davin/easel/pkg/scene"
	boardsync "github.com/davin/easel/pkg/sync"
)

// quietService answers every request without tool calls.
type quietService struct {
	responses []*model.Response
	mu        stdsync.Mutex
}

func (s *quietService) Connect(ctx context.Context) error { return nil }

func (s *quietService) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return &model.Response{}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *quietService) State() model.State { return model.StateConnected }
func (s *quietService) Provider() string   { return "quiet" }
func (s *quietService) Close() error       { return nil }

func newTestBoard(t *testing.T, broker *boardsync.MemoryBroker, svc model.Service) *Board {
	t.Helper()

	queue := runqueue.New()
	t.Cleanup(func() { _ = queue.Close() })

	b, err := New(Config{
		ID:  "main",
		Bus: broker.Endpoint(),
		Dialer: func(ctx context.Context) (model.Service, error) {
			return svc, nil
		},
		Queue:  queue,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew(t *testing.T) {
	t.Run("should require an ID and a bus", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)

		_, err = New(Config{ID: "main"})
		assert.Error(t, err)
	})
}

func TestBoardEdits(t *testing.T) {
	t.Run("should apply user edits and broadcast them", func(t *testing.T) {
		broker := boardsync.NewMemoryBroker()
		observer := broker.Endpoint()

		var mu stdsync.Mutex
		var seen []scene.Envelope
		observer.Subscribe(func(env scene.Envelope) {
			mu.Lock()
			seen = append(seen, env)
			mu.Unlock()
		})

		b := newTestBoard(t, broker, &quietService{})

		require.NoError(t, b.ApplyUserEdit(scene.Add{Element: scene.Element{
			ID: "rect-1", Kind: scene.KindRect, X: 10, Y: 10, Width: 5, Height: 5, Color: "blue",
		}}))

		require.Len(t, b.Elements(), 1)
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, seen, 1)
		assert.Equal(t, scene.TypeAdd, seen[0].Type)
	})

	t.Run("should fold remote edits into the committed state", func(t *testing.T) {
		broker := boardsync.NewMemoryBroker()
		remote := broker.Endpoint()
		b := newTestBoard(t, broker, &quietService{})

		env, err := scene.Encode(scene.Add{Element: scene.Element{ID: "circle-1", Kind: scene.KindCircle, Radius: 3, Color: "red"}})
		require.NoError(t, err)
		require.NoError(t, remote.Publish(env))

		require.Len(t, b.Elements(), 1)
		assert.Equal(t, "circle-1", b.Elements()[0].ID)
	})
}

func TestBoardInstructions(t *testing.T) {
	t.Run("should run an instruction and broadcast the commit", func(t *testing.T) {
		broker := boardsync.NewMemoryBroker()
		observer := broker.Endpoint()

		var mu stdsync.Mutex
		types := make(map[string]int)
		observer.Subscribe(func(env scene.Envelope) {
			mu.Lock()
			types[env.Type]++
			mu.Unlock()
		})

		svc := &quietService{responses: []*model.Response{
			{ToolCalls: []model.ToolCall{{
				ID:   "c1",
				Name: "draw_shape",
				Args: map[string]interface{}{"type": "circle", "x": 50.0, "y": 50.0, "size": 20.0, "color": "red"},
			}}},
			{Text: "Done."},
		}}
		b := newTestBoard(t, broker, svc)

		require.NoError(t, b.SubmitInstruction(context.Background(), "draw a red circle"))

		require.Len(t, b.Elements(), 1)
		assert.Equal(t, scene.KindCircle, b.Elements()[0].Kind)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, types[scene.TypeReplaceAll])
		assert.GreaterOrEqual(t, types[TypeTranscript], 1)
	})

	t.Run("should publish transcript envelopes other participants can decode", func(t *testing.T) {
		broker := boardsync.NewMemoryBroker()
		observer := broker.Endpoint()

		var mu stdsync.Mutex
		var notes []TranscriptPayload
		observer.Subscribe(func(env scene.Envelope) {
			if env.Type != TypeTranscript {
				return
			}
			var p TranscriptPayload
			if err := json.Unmarshal(env.Payload, &p); err == nil {
				mu.Lock()
				notes = append(notes, p)
				mu.Unlock()
			}
		})

		svc := &quietService{responses: []*model.Response{
			{Text: "Nothing to do."},
		}}
		b := newTestBoard(t, broker, svc)

		require.NoError(t, b.SubmitInstruction(context.Background(), "check the board"))

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, notes)

		var sawText bool
		for _, note := range notes {
			if note.Text == "Nothing to do." {
				sawText = true
			}
		}
		assert.True(t, sawText)
	})

	t.Run("should not disturb other participants with transcript envelopes", func(t *testing.T) {
		broker := boardsync.NewMemoryBroker()

		peer, err := boardsync.NewSynchronizer(broker.Endpoint(), zerolog.Nop())
		require.NoError(t, err)
		defer peer.Close()

		svc := &quietService{responses: []*model.Response{
			{Text: "All quiet."},
		}}
		b := newTestBoard(t, broker, svc)

		require.NoError(t, b.SubmitInstruction(context.Background(), "verify the board"))

		// The peer sees the replace_all commit but ignores transcripts.
		assert.Equal(t, b.Elements(), peer.Elements())
	})
}
