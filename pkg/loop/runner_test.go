package loop

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davin/easel/pkg/model"
	"github.com/davin/easel/pkg/runqueue"
	"github.com/davin/easel/pkg/scene"
	"github.com/davin/easel/pkg/snapshot"
)

// scriptedService replays canned responses and records every request.
type scriptedService struct {
	mu        stdsync.Mutex
	responses []*model.Response
	requests  []model.Request
	sendErr   error
	closed    bool
}

func (s *scriptedService) Connect(ctx context.Context) error { return nil }

func (s *scriptedService) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if len(s.responses) == 0 {
		return &model.Response{}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedService) State() model.State { return model.StateConnected }
func (s *scriptedService) Provider() string   { return "scripted" }

func (s *scriptedService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedService) recorded() []model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// fakeBoard records commits without any bus behind it.
type fakeBoard struct {
	mu       stdsync.Mutex
	elements []scene.Element
	commits  []scene.Command
	pubErr   error
}

func (b *fakeBoard) Elements() []scene.Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return scene.Clone(b.elements)
}

func (b *fakeBoard) PublishLocal(cmd scene.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubErr != nil {
		return b.pubErr
	}
	b.commits = append(b.commits, cmd)
	b.elements = scene.Apply(b.elements, cmd)
	return nil
}

func newTestRunner(t *testing.T, board *fakeBoard, svc *scriptedService, opts func(*Config)) *Runner {
	t.Helper()

	queue := runqueue.New()
	t.Cleanup(func() { _ = queue.Close() })

	cfg := Config{
		BoardID: "main",
		Board:   board,
		Dialer: func(ctx context.Context) (model.Service, error) {
			return svc, nil
		},
		Queue:  queue,
		Logger: zerolog.Nop(),
	}
	if opts != nil {
		opts(&cfg)
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	return runner
}

func toolCallResponse(calls ...model.ToolCall) *model.Response {
	return &model.Response{ToolCalls: calls}
}

func TestNewRunner(t *testing.T) {
	t.Run("should require board, dialer, and queue", func(t *testing.T) {
		_, err := NewRunner(Config{BoardID: "main"})
		assert.Error(t, err)

		_, err = NewRunner(Config{BoardID: "main", Board: &fakeBoard{}})
		assert.Error(t, err)
	})

	t.Run("should default the iteration cap", func(t *testing.T) {
		runner := newTestRunner(t, &fakeBoard{}, &scriptedService{}, nil)

		assert.Equal(t, 5, runner.maxIterations)
		assert.Equal(t, PhaseIdle, runner.Phase())
	})
}

func TestRunnerRun(t *testing.T) {
	t.Run("should draw, verify, and commit in one replace", func(t *testing.T) {
		svc := &scriptedService{responses: []*model.Response{
			toolCallResponse(model.ToolCall{
				ID:   "call-1",
				Name: "draw_shape",
				Args: map[string]interface{}{
					"type": "circle", "x": 50.0, "y": 50.0, "size": 20.0, "color": "red",
				},
			}),
			{Text: "The circle looks right."},
		}}
		board := &fakeBoard{}
		runner := newTestRunner(t, board, svc, nil)

		err := runner.Run(context.Background(), "draw a red circle in the middle")

		require.NoError(t, err)
		require.Len(t, board.commits, 1)
		replace, ok := board.commits[0].(scene.ReplaceAll)
		require.True(t, ok)
		require.Len(t, replace.Elements, 1)
		el := replace.Elements[0]
		assert.Equal(t, scene.KindCircle, el.Kind)
		assert.Equal(t, 50.0, el.X)
		assert.Equal(t, 50.0, el.Y)
		assert.Equal(t, 10.0, el.Radius)
		assert.Equal(t, "red", el.Color)
		assert.Equal(t, PhaseIdle, runner.Phase())
		assert.True(t, svc.closed)
	})

	t.Run("should acknowledge every tool call before the review prompt", func(t *testing.T) {
		svc := &scriptedService{responses: []*model.Response{
			toolCallResponse(
				model.ToolCall{ID: "call-1", Name: "draw_shape", Args: map[string]interface{}{
					"type": "rect", "x": 10.0, "y": 10.0, "size": 20.0, "color": "blue",
				}},
				model.ToolCall{ID: "call-2", Name: "resize_canvas", Args: map[string]interface{}{}},
			),
			{},
		}}
		board := &fakeBoard{}
		runner := newTestRunner(t, board, svc, nil)

		require.NoError(t, runner.Run(context.Background(), "draw a blue square"))

		requests := svc.recorded()
		require.Len(t, requests, 2)

		var acks []model.AckPart
		for _, part := range requests[1].Parts {
			if ack, ok := part.(model.AckPart); ok {
				acks = append(acks, ack)
			}
		}
		require.Len(t, acks, 2)
		assert.Equal(t, "call-1", acks[0].CallID)
		assert.Equal(t, "applied", acks[0].Output)
		assert.Equal(t, "call-2", acks[1].CallID)
		assert.Contains(t, acks[1].Output, "ignored")

		// The unknown tool must not have changed the draft.
		replace := board.commits[0].(scene.ReplaceAll)
		assert.Len(t, replace.Elements, 1)
	})

	t.Run("should stop at the iteration cap and commit the draft as-is", func(t *testing.T) {
		restless := func(id string) *model.Response {
			return toolCallResponse(model.ToolCall{
				ID:   id,
				Name: "draw_shape",
				Args: map[string]interface{}{
					"type": "circle", "x": 30.0, "y": 30.0, "size": 4.0, "color": "green",
				},
			})
		}
		svc := &scriptedService{responses: []*model.Response{
			restless("c1"), restless("c2"), restless("c3"), restless("c4"), restless("c5"),
			restless("never-reached"),
		}}
		board := &fakeBoard{}
		runner := newTestRunner(t, board, svc, func(cfg *Config) {
			cfg.MaxIterations = 5
		})

		require.NoError(t, runner.Run(context.Background(), "keep drawing"))

		// One initial request plus four review rounds.
		assert.Len(t, svc.recorded(), 5)
		require.Len(t, board.commits, 1)
		replace := board.commits[0].(scene.ReplaceAll)
		assert.Len(t, replace.Elements, 5)
		assert.Equal(t, PhaseIdle, runner.Phase())
	})

	t.Run("should attach a snapshot to review prompts when capture works", func(t *testing.T) {
		svc := &scriptedService{responses: []*model.Response{
			toolCallResponse(model.ToolCall{ID: "c1", Name: "clear_board", Args: map[string]interface{}{}}),
			{},
		}}
		runner := newTestRunner(t, &fakeBoard{}, svc, func(cfg *Config) {
			cfg.Snapshots = &snapshot.Static{Data: []byte("png-bytes")}
		})

		require.NoError(t, runner.Run(context.Background(), "wipe the board"))

		requests := svc.recorded()
		require.Len(t, requests, 2)

		var image *model.ImagePart
		for _, part := range requests[1].Parts {
			if img, ok := part.(model.ImagePart); ok {
				image = &img
			}
		}
		require.NotNil(t, image)
		assert.Equal(t, snapshot.MediaType, image.MediaType)
		assert.Equal(t, []byte("png-bytes"), image.Data)
	})

	t.Run("should review without an image when the snapshot fails", func(t *testing.T) {
		svc := &scriptedService{responses: []*model.Response{
			toolCallResponse(model.ToolCall{ID: "c1", Name: "add_text", Args: map[string]interface{}{
				"x": 10.0, "y": 10.0, "text": "hello",
			}}),
			{},
		}}
		board := &fakeBoard{}
		runner := newTestRunner(t, board, svc, func(cfg *Config) {
			cfg.Snapshots = &snapshot.Static{Err: errors.New("renderer down")}
		})

		require.NoError(t, runner.Run(context.Background(), "write hello"))

		requests := svc.recorded()
		require.Len(t, requests, 2)

		var sawImage bool
		var review string
		for _, part := range requests[1].Parts {
			switch p := part.(type) {
			case model.ImagePart:
				sawImage = true
			case model.TextPart:
				review = p.Text
			}
		}
		assert.False(t, sawImage)
		assert.Contains(t, review, "hello")
		require.Len(t, board.commits, 1)
	})

	t.Run("should leave committed state untouched when the model fails", func(t *testing.T) {
		svc := &scriptedService{sendErr: errors.New("upstream 500")}
		board := &fakeBoard{elements: []scene.Element{
			{ID: "keep", Kind: scene.KindRect, X: 5, Y: 5, Width: 10, Height: 10, Color: "blue"},
		}}
		runner := newTestRunner(t, board, svc, nil)

		err := runner.Run(context.Background(), "draw something")

		assert.Error(t, err)
		assert.Empty(t, board.commits)
		require.Len(t, board.Elements(), 1)
		assert.Equal(t, "keep", board.Elements()[0].ID)
		assert.Equal(t, PhaseIdle, runner.Phase())
	})

	t.Run("should report an error event and return to idle on failure", func(t *testing.T) {
		svc := &scriptedService{sendErr: errors.New("upstream 500")}

		var mu stdsync.Mutex
		var failures []error
		runner := newTestRunner(t, &fakeBoard{}, svc, func(cfg *Config) {
			cfg.Events = func(ev Event) {
				if ev.Err != nil {
					mu.Lock()
					failures = append(failures, ev.Err)
					mu.Unlock()
				}
			}
		})

		require.Error(t, runner.Run(context.Background(), "draw something"))

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Error(), "upstream 500")
	})

	t.Run("should forward model commentary as transcript events", func(t *testing.T) {
		svc := &scriptedService{responses: []*model.Response{
			{Text: "Nothing to change, the board already matches."},
		}}

		var mu stdsync.Mutex
		var notes []string
		runner := newTestRunner(t, &fakeBoard{}, svc, func(cfg *Config) {
			cfg.Events = func(ev Event) {
				if ev.Text != "" {
					mu.Lock()
					notes = append(notes, ev.Text)
					mu.Unlock()
				}
			}
		})

		require.NoError(t, runner.Run(context.Background(), "ensure the board is fine"))

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, notes, 1)
		assert.Contains(t, notes[0], "already matches")
	})

	t.Run("should serialize concurrent runs on the same board", func(t *testing.T) {
		var mu stdsync.Mutex
		active := 0
		maxActive := 0

		board := &fakeBoard{}
		queue := runqueue.New()
		t.Cleanup(func() { _ = queue.Close() })

		runner, err := NewRunner(Config{
			BoardID: "main",
			Board:   board,
			Queue:   queue,
			Logger:  zerolog.Nop(),
			Dialer: func(ctx context.Context) (model.Service, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return &scriptedService{}, nil
			},
		})
		require.NoError(t, err)

		var wg stdsync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = runner.Run(context.Background(), "draw")
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, maxActive)
		assert.Len(t, board.commits, 3)
	})

	t.Run("should verify on the first review pass and fix on later ones", func(t *testing.T) {
		restless := func(id string) *model.Response {
			return toolCallResponse(model.ToolCall{
				ID:   id,
				Name: "draw_shape",
				Args: map[string]interface{}{
					"type": "circle", "x": 40.0, "y": 40.0, "size": 8.0, "color": "red",
				},
			})
		}
		svc := &scriptedService{responses: []*model.Response{
			restless("c1"), restless("c2"), {},
		}}

		var mu stdsync.Mutex
		var phases []Phase
		runner := newTestRunner(t, &fakeBoard{}, svc, func(cfg *Config) {
			cfg.Events = func(ev Event) {
				if ev.Text == "" && ev.Err == nil {
					mu.Lock()
					phases = append(phases, ev.Phase)
					mu.Unlock()
				}
			}
		})

		require.NoError(t, runner.Run(context.Background(), "draw a red circle"))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []Phase{PhaseGenerating, PhaseVerifying, PhaseFixing, PhaseIdle}, phases)
	})

	t.Run("should reject an empty instruction", func(t *testing.T) {
		runner := newTestRunner(t, &fakeBoard{}, &scriptedService{}, nil)

		err := runner.Run(context.Background(), "")

		assert.Error(t, err)
	})
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "generating", PhaseGenerating.String())
	assert.Equal(t, "verifying", PhaseVerifying.String())
	assert.Equal(t, "fixing", PhaseFixing.String())
}
