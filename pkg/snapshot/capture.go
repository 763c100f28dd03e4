package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/davin/easel/internal/observability"
)

// CaptureConfig configures a headless-browser board capture.
type CaptureConfig struct {
	// BoardURL is the page that renders the board, e.g. a local viewer
	// pointed at the hub's websocket endpoint.
	BoardURL string
	// Headless controls whether the browser runs without a display.
	Headless bool
	// NoSandbox disables the Chrome sandbox, needed in some containers.
	NoSandbox bool
}

// BoardCapture screenshots a live board page through a headless browser.
// The browser and page are created lazily on first Capture and reused.
type BoardCapture struct {
	cfg    CaptureConfig
	logger zerolog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

// NewBoardCapture creates a capture provider for the given board page.
func NewBoardCapture(cfg CaptureConfig, logger zerolog.Logger) (*BoardCapture, error) {
	if cfg.BoardURL == "" {
		return nil, fmt.Errorf("board URL is required")
	}
	return &BoardCapture{
		cfg:    cfg,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}, nil
}

// Capture returns a PNG of the board page. Failures are reported to the
// caller, which is expected to continue without the image.
func (bc *BoardCapture) Capture(ctx context.Context) ([]byte, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return nil, fmt.Errorf("capture provider is closed")
	}

	if err := bc.ensurePage(ctx); err != nil {
		observability.RecordSnapshot(false)
		return nil, err
	}

	page := bc.page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		observability.RecordSnapshot(false)
		bc.teardownLocked()
		return nil, fmt.Errorf("failed to wait for board page: %w", err)
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		observability.RecordSnapshot(false)
		bc.teardownLocked()
		return nil, fmt.Errorf("failed to capture board screenshot: %w", err)
	}

	observability.RecordSnapshot(true)
	bc.logger.Debug().Int("bytes", len(data)).Msg("Captured board snapshot")
	return data, nil
}

func (bc *BoardCapture) ensurePage(ctx context.Context) error {
	if bc.page != nil {
		return nil
	}

	if bc.browser == nil {
		l := launcher.New().Headless(bc.cfg.Headless)
		if bc.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}

		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}

		browser := rod.New().ControlURL(url).Context(ctx)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return fmt.Errorf("failed to connect to browser: %w", err)
		}

		bc.launcher = l
		bc.browser = browser
		bc.logger.Info().Str("board_url", bc.cfg.BoardURL).Msg("Browser launched for board capture")
	}

	page, err := bc.browser.Page(proto.TargetCreateTarget{URL: bc.cfg.BoardURL})
	if err != nil {
		return fmt.Errorf("failed to open board page: %w", err)
	}

	bc.page = page
	return nil
}

// teardownLocked drops the browser so the next Capture starts fresh.
// Caller must hold bc.mu.
func (bc *BoardCapture) teardownLocked() {
	if bc.page != nil {
		_ = bc.page.Close()
		bc.page = nil
	}
	if bc.browser != nil {
		_ = bc.browser.Close()
		bc.browser = nil
	}
	if bc.launcher != nil {
		bc.launcher.Kill()
		bc.launcher = nil
	}
}

// Close shuts down the browser. Safe to call more than once.
func (bc *BoardCapture) Close() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true
	bc.teardownLocked()
	bc.logger.Info().Msg("Board capture closed")
	return nil
}
