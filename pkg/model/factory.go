package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/davin/easel/internal/observability"
)

// ServiceCreator creates model sessions from auth profiles.
type ServiceCreator interface {
	NewService(profile AuthProfile, cfg Config) (Service, error)
}

// Factory creates model sessions
type Factory struct{}

// NewService creates a new model session based on auth profile
func (f *Factory) NewService(profile AuthProfile, cfg Config) (Service, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicService(profile.APIKey, cfg), nil
	case "openai":
		return NewOpenAIService(profile.APIKey, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// Dial tries profiles in priority order (lower wins) until one session
// connects. The returned session is connected and ready to Send.
func Dial(ctx context.Context, profiles []AuthProfile, cfg Config, logger zerolog.Logger) (Service, error) {
	return dialWith(ctx, &Factory{}, profiles, cfg, logger)
}

func dialWith(ctx context.Context, creator ServiceCreator, profiles []AuthProfile, cfg Config, logger zerolog.Logger) (Service, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	sorted := make([]AuthProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	var lastErr error
	for _, profile := range sorted {
		svc, err := creator.NewService(profile, cfg)
		if err != nil {
			logger.Warn().
				Str("profileId", profile.ID).
				Err(err).
				Msg("Failed to create model session")
			lastErr = err
			continue
		}

		if err := svc.Connect(ctx); err != nil {
			logger.Warn().
				Str("profileId", profile.ID).
				Err(err).
				Msg("Model session failed to connect")
			observability.SetProviderCooldown(profile.Provider, true)
			lastErr = err
			continue
		}

		observability.SetProviderCooldown(profile.Provider, false)
		logger.Info().
			Str("profileId", profile.ID).
			Str("provider", svc.Provider()).
			Msg("Model session connected")
		return svc, nil
	}

	return nil, fmt.Errorf("all auth profiles failed: %w", lastErr)
}
