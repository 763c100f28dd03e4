// Package daemon assembles and runs the easel service: the hub collaborators
// connect to, the board state it synchronizes, and the verification runner
// that executes instructions against it.
package daemon

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davin/easel/internal/config"
	"github.com/davin/easel/internal/logger"
	"github.com/davin/easel/internal/observability"
	"github.com/davin/easel/pkg/board"
	"github.com/davin/easel/pkg/hub"
	"github.com/davin/easel/pkg/loop"
	"github.com/davin/easel/pkg/model"
	"github.com/davin/easel/pkg/runqueue"
	"github.com/davin/easel/pkg/snapshot"
	"github.com/davin/easel/pkg/toolmap"
)

// Daemon is the easel service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	queue     *runqueue.Queue
	hubServer *hub.Server
	snapshots snapshot.Provider
	board     *board.Board

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running   bool       `json:"running"`
	Phase     string     `json:"phase"`
	Clients   int        `json:"clients"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// New creates a daemon from a validated configuration.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := d.initialize(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initialize() error {
	zlog := d.logger.GetZerolog()

	observability.EnsureRegistered()

	hubServer, err := hub.NewServer(hub.Config{
		Host:   d.config.Hub.Host,
		Port:   d.config.Hub.Port,
		Logger: zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create hub server: %w", err)
	}
	d.hubServer = hubServer

	if d.config.Renderer.Enabled {
		capture, err := snapshot.NewBoardCapture(snapshot.CaptureConfig{
			BoardURL:  d.config.Renderer.BoardURL,
			Headless:  true,
			NoSandbox: os.Getuid() == 0,
		}, zlog)
		if err != nil {
			return fmt.Errorf("failed to create board capture: %w", err)
		}
		d.snapshots = capture
	} else {
		d.snapshots = &snapshot.Static{}
	}

	d.queue = runqueue.New()

	modelCfg := model.Config{
		Model:        d.config.AI.Model,
		Temperature:  d.config.AI.Temperature,
		MaxTokens:    d.config.AI.MaxTokens,
		SystemPrompt: loop.SystemPrompt,
		Tools:        toolmap.Definitions(),
	}

	b, err := board.New(board.Config{
		ID:            d.config.Board.ID,
		Bus:           d.hubServer,
		Dialer:        board.NewDialer(convertAuthProfiles(d.config.AI.Profiles), modelCfg, zlog),
		Snapshots:     d.snapshots,
		Queue:         d.queue,
		MaxIterations: d.config.Board.MaxIterations,
		SettleDelay:   time.Duration(d.config.Board.SettleDelayMs) * time.Millisecond,
		Logger:        zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}
	d.board = b

	return nil
}

// Start brings the daemon up: hub first, then the config watcher.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.hubServer.Start(); err != nil {
		return fmt.Errorf("failed to start hub server: %w", err)
	}

	d.isRunning = true
	d.startedAt = time.Now()

	zlog := d.logger.GetZerolog()
	zlog.Info().
		Str("boardId", d.config.Board.ID).
		Int("port", d.config.Hub.Port).
		Msg("Easel daemon started")
	return nil
}

// Stop shuts the daemon down in reverse start order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}

	zlog := d.logger.GetZerolog()
	if err := d.hubServer.Stop(); err != nil {
		zlog.Error().Err(err).Msg("Failed to stop hub server")
	}

	if err := d.queue.Close(); err != nil {
		zlog.Error().Err(err).Msg("Failed to close run queue")
	}

	if err := d.snapshots.Close(); err != nil {
		zlog.Error().Err(err).Msg("Failed to close snapshot provider")
	}

	d.isRunning = false
	zlog.Info().Msg("Easel daemon stopped")
	return nil
}

// Wait blocks until the process receives an interrupt or termination signal.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zlog := d.logger.GetZerolog()
	zlog.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
}

// Status reports the daemon's current state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		Running: d.isRunning,
		Phase:   d.board.Phase().String(),
		Clients: d.hubServer.ClientCount(),
	}
	if d.isRunning {
		startedAt := d.startedAt
		st.StartedAt = &startedAt
	}
	return st
}

// Board returns the daemon's board.
func (d *Daemon) Board() *board.Board {
	return d.board
}

// ApplyReload applies the settings that are safe to change at runtime.
// Everything else requires a restart.
func (d *Daemon) ApplyReload(cfg *config.Config) {
	zlog := d.logger.GetZerolog()
	zlog.Info().Msg("Configuration reloaded")
	d.logger.SetLevel(cfg.Logging.Level)
}

func convertAuthProfiles(profiles []config.AIProfile) []model.AuthProfile {
	out := make([]model.AuthProfile, len(profiles))
	for i, p := range profiles {
		out[i] = model.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		}
	}
	return out
}
