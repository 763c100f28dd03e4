package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davin/easel/internal/config"
	"github.com/davin/easel/internal/daemon"
	"github.com/davin/easel/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Easel daemon in the foreground",
	Long: `Run the Easel daemon in the foreground. The daemon serves the board
hub for collaborators and executes drawing instructions until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	zlog := log.GetZerolog()
	watcher, err := config.NewWatcher(loader, d.ApplyReload)
	if err != nil {
		zlog.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else if err := watcher.Start(); err != nil {
		zlog.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		defer watcher.Stop()
	}

	d.Wait()

	return d.Stop()
}
