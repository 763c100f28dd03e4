package model

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	t.Run("should create anthropic session", func(t *testing.T) {
		svc, err := (&Factory{}).NewService(AuthProfile{Provider: "anthropic", APIKey: "key"}, Config{Model: "m"})

		require.NoError(t, err)
		assert.Equal(t, "anthropic", svc.Provider())
		assert.Equal(t, StateDisconnected, svc.State())
	})

	t.Run("should create openai session", func(t *testing.T) {
		svc, err := (&Factory{}).NewService(AuthProfile{Provider: "openai", APIKey: "key"}, Config{Model: "m"})

		require.NoError(t, err)
		assert.Equal(t, "openai", svc.Provider())
	})

	t.Run("should reject unsupported provider", func(t *testing.T) {
		_, err := (&Factory{}).NewService(AuthProfile{Provider: "gemini", APIKey: "key"}, Config{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("should walk disconnected to connected", func(t *testing.T) {
		svc := NewAnthropicService("key", Config{Model: "m", MaxTokens: 100})

		assert.Equal(t, StateDisconnected, svc.State())
		require.NoError(t, svc.Connect(context.Background()))
		assert.Equal(t, StateConnected, svc.State())
	})

	t.Run("should make connect idempotent", func(t *testing.T) {
		svc := NewOpenAIService("key", Config{Model: "m"})

		require.NoError(t, svc.Connect(context.Background()))
		require.NoError(t, svc.Connect(context.Background()))
		assert.Equal(t, StateConnected, svc.State())
	})

	t.Run("should make close idempotent", func(t *testing.T) {
		svc := NewAnthropicService("key", Config{Model: "m"})
		require.NoError(t, svc.Connect(context.Background()))

		require.NoError(t, svc.Close())
		require.NoError(t, svc.Close())
		assert.Equal(t, StateDisconnected, svc.State())
	})

	t.Run("should refuse to send while disconnected", func(t *testing.T) {
		svc := NewAnthropicService("key", Config{Model: "m"})

		_, err := svc.Send(context.Background(), Request{Parts: []Part{TextPart{Text: "hi"}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disconnected")
	})
}

type fakeCreator struct {
	services map[string]Service
}

func (f *fakeCreator) NewService(profile AuthProfile, cfg Config) (Service, error) {
	svc, ok := f.services[profile.ID]
	if !ok {
		return nil, fmt.Errorf("no service for %s", profile.ID)
	}
	return svc, nil
}

type stubService struct {
	provider   string
	connectErr error
	state      State
}

func (s *stubService) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		s.state = StateError
		return s.connectErr
	}
	s.state = StateConnected
	return nil
}

func (s *stubService) Send(ctx context.Context, req Request) (*Response, error) {
	return &Response{}, nil
}

func (s *stubService) State() State     { return s.state }
func (s *stubService) Provider() string { return s.provider }
func (s *stubService) Close() error     { return nil }

func TestDial(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	t.Run("should pick highest-priority profile first", func(t *testing.T) {
		primary := &stubService{provider: "anthropic"}
		secondary := &stubService{provider: "openai"}
		creator := &fakeCreator{services: map[string]Service{"primary": primary, "secondary": secondary}}

		svc, err := dialWith(context.Background(), creator, []AuthProfile{
			{ID: "secondary", Provider: "openai", Priority: 2},
			{ID: "primary", Provider: "anthropic", Priority: 1},
		}, Config{}, logger)

		require.NoError(t, err)
		assert.Same(t, primary, svc)
	})

	t.Run("should fail over when connect fails", func(t *testing.T) {
		broken := &stubService{provider: "anthropic", connectErr: fmt.Errorf("503 unavailable")}
		fallback := &stubService{provider: "openai"}
		creator := &fakeCreator{services: map[string]Service{"broken": broken, "fallback": fallback}}

		svc, err := dialWith(context.Background(), creator, []AuthProfile{
			{ID: "broken", Provider: "anthropic", Priority: 1},
			{ID: "fallback", Provider: "openai", Priority: 2},
		}, Config{}, logger)

		require.NoError(t, err)
		assert.Same(t, fallback, svc)
	})

	t.Run("should surface the last error when all fail", func(t *testing.T) {
		broken := &stubService{provider: "anthropic", connectErr: fmt.Errorf("bad key")}
		creator := &fakeCreator{services: map[string]Service{"broken": broken}}

		_, err := dialWith(context.Background(), creator, []AuthProfile{
			{ID: "broken", Provider: "anthropic", Priority: 1},
		}, Config{}, logger)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "all auth profiles failed")
	})

	t.Run("should require at least one profile", func(t *testing.T) {
		_, err := Dial(context.Background(), nil, Config{}, logger)
		assert.Error(t, err)
	})
}

func TestIsRetryableError(t *testing.T) {
	t.Run("should identify retryable errors", func(t *testing.T) {
		assert.True(t, IsRetryableError(fmt.Errorf("ECONNRESET")))
		assert.True(t, IsRetryableError(fmt.Errorf("429 rate limit")))
		assert.True(t, IsRetryableError(fmt.Errorf("502 bad gateway")))
	})

	t.Run("should identify non-retryable errors", func(t *testing.T) {
		assert.False(t, IsRetryableError(fmt.Errorf("invalid API key")))
		assert.False(t, IsRetryableError(nil))
	})
}
