// Package board assembles one shared board: a synchronizer holding the
// committed state, a verification runner executing instructions against it,
// and the bus both use to reach collaborators.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/davin/easel/pkg/loop"
	"github.com/davin/easel/pkg/model"
	"github.com/davin/easel/pkg/runqueue"
	"github.com/davin/easel/pkg/scene"
	"github.com/davin/easel/pkg/snapshot"
	boardsync "github.com/davin/easel/pkg/sync"
)

// TypeTranscript tags run commentary on the wire. Collaborators that do not
// render transcripts ignore the type.
const TypeTranscript = "transcript"

// TranscriptPayload is the wire payload of a transcript envelope.
type TranscriptPayload struct {
	Phase string `json:"phase"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Config configures a board.
type Config struct {
	ID            string
	Bus           boardsync.Bus
	Dialer        loop.Dialer
	Snapshots     snapshot.Provider
	Queue         *runqueue.Queue
	MaxIterations int
	SettleDelay   time.Duration
	Logger        zerolog.Logger
}

// Board is the daemon-side participant of one shared board. Collaborator
// edits and instruction runs both funnel into the same synchronized state.
type Board struct {
	id     string
	bus    boardsync.Bus
	sync   *boardsync.Synchronizer
	runner *loop.Runner
	logger zerolog.Logger
}

// New assembles a board on the given bus.
func New(cfg Config) (*Board, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("board ID is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}

	logger := cfg.Logger.With().Str("component", "board").Str("boardId", cfg.ID).Logger()

	synchronizer, err := boardsync.NewSynchronizer(cfg.Bus, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create synchronizer: %w", err)
	}

	b := &Board{
		id:     cfg.ID,
		bus:    cfg.Bus,
		sync:   synchronizer,
		logger: logger,
	}

	runner, err := loop.NewRunner(loop.Config{
		BoardID:       cfg.ID,
		MaxIterations: cfg.MaxIterations,
		SettleDelay:   cfg.SettleDelay,
		Board:         synchronizer,
		Dialer:        cfg.Dialer,
		Snapshots:     cfg.Snapshots,
		Queue:         cfg.Queue,
		Events:        b.publishTranscript,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	b.runner = runner

	return b, nil
}

// SubmitInstruction runs one natural-language instruction against the
// board. It blocks until the run commits or fails; concurrent submissions
// queue behind each other.
func (b *Board) SubmitInstruction(ctx context.Context, instruction string) error {
	b.logger.Info().Str("instruction", instruction).Msg("Instruction submitted")
	return b.runner.Run(ctx, instruction)
}

// ApplyUserEdit applies a collaborator-originated command directly to the
// committed state and broadcasts it.
func (b *Board) ApplyUserEdit(cmd scene.Command) error {
	return b.sync.PublishLocal(cmd)
}

// Elements returns a copy of the committed board state.
func (b *Board) Elements() []scene.Element {
	return b.sync.Elements()
}

// Phase reports what the runner is currently doing.
func (b *Board) Phase() loop.Phase {
	return b.runner.Phase()
}

// publishTranscript broadcasts run progress so collaborators can show what
// the assistant is doing. Delivery failures only get logged; a run never
// fails because a transcript did not go out.
func (b *Board) publishTranscript(ev loop.Event) {
	payload := TranscriptPayload{
		Phase: ev.Phase.String(),
		Text:  ev.Text,
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to marshal transcript")
		return
	}

	if err := b.bus.Publish(scene.Envelope{Type: TypeTranscript, Payload: data}); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to publish transcript")
	}
}

// Close releases the board's bus endpoint.
func (b *Board) Close() error {
	return b.sync.Close()
}

// NewDialer adapts provider profiles and a model configuration into the
// runner's session opener.
func NewDialer(profiles []model.AuthProfile, cfg model.Config, logger zerolog.Logger) loop.Dialer {
	return func(ctx context.Context) (model.Service, error) {
		return model.Dial(ctx, profiles, cfg, logger)
	}
}
