package loop

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davin/easel/internal/observability"
	"github.com/davin/easel/internal/tracing"
	"github.com/davin/easel/pkg/model"
	"github.com/davin/easel/pkg/runqueue"
	"github.com/davin/easel/pkg/scene"
	"github.com/davin/easel/pkg/snapshot"
	"github.com/davin/easel/pkg/toolmap"
)

// Phase is the runner's lifecycle state, visible to callers while a run is
// in flight.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseVerifying
	PhaseFixing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseVerifying:
		return "verifying"
	case PhaseFixing:
		return "fixing"
	default:
		return "unknown"
	}
}

// Run outcomes recorded per completed run.
const (
	OutcomeCommitted = "committed"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Event is a transcript entry emitted while a run progresses: model
// commentary, phase changes, and errors.
type Event struct {
	Phase Phase
	Text  string
	Err   error
}

// Board is the committed state the runner drafts against and commits to.
// Drafts never touch it until the final commit.
type Board interface {
	Elements() []scene.Element
	PublishLocal(cmd scene.Command) error
}

// Dialer opens a fresh model session. Each run gets its own session so
// conversation history never leaks across runs.
type Dialer func(ctx context.Context) (model.Service, error)

// Config configures a Runner.
type Config struct {
	BoardID string
	// MaxIterations caps verification passes per run.
	MaxIterations int
	// SettleDelay is how long to wait after applying edits before taking a
	// snapshot, giving renderers time to catch up.
	SettleDelay time.Duration
	Board       Board
	Dialer      Dialer
	Snapshots   snapshot.Provider
	Queue       *runqueue.Queue
	// Events receives transcript entries. Optional.
	Events func(ev Event)
	Logger zerolog.Logger
}

// Runner executes instruction runs: it drafts changes off the committed
// board state, lets the model review renders of its own work, and commits
// the final draft wholesale. Runs for the same board are serialized through
// the queue; concurrent submissions wait their turn.
type Runner struct {
	boardID       string
	maxIterations int
	settleDelay   time.Duration
	board         Board
	dialer        Dialer
	snapshots     snapshot.Provider
	queue         *runqueue.Queue
	events        func(ev Event)
	logger        zerolog.Logger

	mu    stdsync.RWMutex
	phase Phase
}

// NewRunner creates a runner for one board.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.BoardID == "" {
		return nil, fmt.Errorf("board ID is required")
	}
	if cfg.Board == nil {
		return nil, fmt.Errorf("board is required")
	}
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.Snapshots == nil {
		cfg.Snapshots = &snapshot.Static{}
	}

	return &Runner{
		boardID:       cfg.BoardID,
		maxIterations: cfg.MaxIterations,
		settleDelay:   cfg.SettleDelay,
		board:         cfg.Board,
		dialer:        cfg.Dialer,
		snapshots:     cfg.Snapshots,
		queue:         cfg.Queue,
		events:        cfg.Events,
		logger:        cfg.Logger.With().Str("component", "loop").Str("boardId", cfg.BoardID).Logger(),
	}, nil
}

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
	r.emit(Event{Phase: p})
}

func (r *Runner) emit(ev Event) {
	if r.events != nil {
		r.events(ev)
	}
}

// Run executes one instruction against the board. Runs queue behind any run
// already in flight on the same board and block until finished.
func (r *Runner) Run(ctx context.Context, instruction string) error {
	if instruction == "" {
		return fmt.Errorf("instruction is required")
	}

	lane := "board-" + r.boardID
	_, err := r.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return nil, r.execute(taskCtx, instruction)
	})
	return err
}

// execute performs one run end to end. Whatever happens, the runner returns
// to idle; committed state is only replaced on a non-error exit.
func (r *Runner) execute(ctx context.Context, instruction string) error {
	ctx = tracing.NewRunContext(ctx, r.boardID)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	started := time.Now()
	iterations := 0

	outcome, err := r.run(ctx, instruction, &iterations)

	observability.RecordLoopRun(outcome, time.Since(started), iterations)
	r.setPhase(PhaseIdle)

	if err != nil {
		logger.Error().Err(err).Int("iterations", iterations).Msg("Run failed")
		r.emit(Event{Phase: PhaseIdle, Err: err})
		return err
	}

	logger.Info().
		Str("outcome", outcome).
		Int("iterations", iterations).
		Dur("duration", time.Since(started)).
		Msg("Run finished")
	return nil
}

func (r *Runner) run(ctx context.Context, instruction string, iterations *int) (string, error) {
	r.setPhase(PhaseGenerating)

	session, err := r.dialer(ctx)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to open model session: %w", err)
	}
	defer session.Close()

	draft := scene.Clone(r.board.Elements())

	resp, err := session.Send(ctx, model.Request{Parts: []model.Part{
		model.TextPart{Text: instruction},
	}})
	if err != nil {
		return OutcomeError, fmt.Errorf("model request failed: %w", err)
	}

	exhausted := true
	for i := 1; i <= r.maxIterations; i++ {
		*iterations = i

		if resp.Text != "" {
			r.emit(Event{Phase: r.Phase(), Text: resp.Text})
		}

		acks := r.applyToolCalls(resp.ToolCalls, &draft)

		// A response without tool calls means the model is satisfied.
		if len(resp.ToolCalls) == 0 {
			exhausted = false
			break
		}
		if i == r.maxIterations {
			break
		}

		// First review pass is a verification; later passes are fixes.
		if i == 1 {
			r.setPhase(PhaseVerifying)
		} else {
			r.setPhase(PhaseFixing)
		}
		if err := r.settle(ctx); err != nil {
			return OutcomeError, err
		}

		parts := append(acks, r.reviewParts(ctx, i, draft)...)

		resp, err = session.Send(ctx, model.Request{Parts: parts})
		if err != nil {
			return OutcomeError, fmt.Errorf("model request failed: %w", err)
		}
	}

	if err := r.board.PublishLocal(scene.ReplaceAll{Elements: draft}); err != nil {
		return OutcomeError, fmt.Errorf("failed to commit draft: %w", err)
	}

	if exhausted {
		r.logger.Warn().Int("maxIterations", r.maxIterations).Msg("Iteration cap reached, committing draft as-is")
		return OutcomeExhausted, nil
	}
	return OutcomeCommitted, nil
}

// applyToolCalls maps and applies each call against the draft, in order.
// Every call gets an ack, including ones the mapper rejected, so the
// conversation protocol stays balanced.
func (r *Runner) applyToolCalls(calls []model.ToolCall, draft *[]scene.Element) []model.Part {
	acks := make([]model.Part, 0, len(calls))

	for _, call := range calls {
		cmd, ok := toolmap.Map(call.Name, call.Args, *draft)
		if !ok {
			r.logger.Warn().Str("tool", call.Name).Msg("Ignoring unmappable tool call")
			acks = append(acks, model.AckPart{CallID: call.ID, Output: "ignored: no matching board change"})
			continue
		}

		*draft = scene.Apply(*draft, cmd)
		acks = append(acks, model.AckPart{CallID: call.ID, Output: "applied"})
	}

	return acks
}

// settle waits for the renderer to catch up before a snapshot is taken.
func (r *Runner) settle(ctx context.Context) error {
	if r.settleDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.settleDelay):
		return nil
	}
}

// reviewParts builds the critique portion of the next request. Snapshot
// failures degrade the review to a textual board description.
func (r *Runner) reviewParts(ctx context.Context, iteration int, draft []scene.Element) []model.Part {
	image, err := r.snapshots.Capture(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Snapshot failed, reviewing without image")
		image = nil
	}

	parts := make([]model.Part, 0, 2)
	if len(image) > 0 {
		parts = append(parts, model.ImagePart{
			MediaType: snapshot.MediaType,
			Data:      image,
		})
	}
	parts = append(parts, model.TextPart{Text: buildCritique(iteration, len(image) > 0, draft)})
	return parts
}
