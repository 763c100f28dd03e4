package sync

import (
	"errors"
	"fmt"
	stdsync "sync"

	"github.com/rs/zerolog"

	"github.com/davin/easel/pkg/scene"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("bus is closed")

// Synchronizer keeps one participant's copy of the board converged with
// every other participant's. Local commands are applied here and then
// published; remote envelopes are applied and never re-published, so no
// envelope echoes back onto the bus.
type Synchronizer struct {
	bus    Bus
	logger zerolog.Logger

	mu       stdsync.RWMutex
	elements []scene.Element
}

// NewSynchronizer binds a synchronizer to a bus and starts applying remote
// envelopes as they arrive.
func NewSynchronizer(bus Bus, logger zerolog.Logger) (*Synchronizer, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus is required")
	}

	s := &Synchronizer{
		bus:    bus,
		logger: logger.With().Str("component", "synchronizer").Logger(),
	}
	bus.Subscribe(s.handleRemote)
	return s, nil
}

// PublishLocal applies a locally originated command and broadcasts it.
// The local state is updated even when publishing fails, so callers keep a
// consistent view and can surface the delivery error separately.
func (s *Synchronizer) PublishLocal(cmd scene.Command) error {
	env, err := scene.Encode(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	s.mu.Lock()
	s.elements = scene.Apply(s.elements, cmd)
	s.mu.Unlock()

	if err := s.bus.Publish(env); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}

	s.logger.Debug().Str("type", env.Type).Msg("Published local command")
	return nil
}

// handleRemote applies an envelope that another participant published.
func (s *Synchronizer) handleRemote(env scene.Envelope) {
	cmd, err := scene.Decode(env)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", env.Type).Msg("Dropping malformed remote envelope")
		return
	}
	if cmd == nil {
		s.logger.Debug().Str("type", env.Type).Msg("Ignoring unknown envelope type")
		return
	}

	s.mu.Lock()
	s.elements = scene.Apply(s.elements, cmd)
	s.mu.Unlock()

	s.logger.Debug().Str("type", env.Type).Msg("Applied remote command")
}

// Elements returns a copy of the current board state.
func (s *Synchronizer) Elements() []scene.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scene.Clone(s.elements)
}

// Close releases the underlying bus endpoint.
func (s *Synchronizer) Close() error {
	return s.bus.Close()
}
