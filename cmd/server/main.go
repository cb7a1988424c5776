// Command server runs the OpenAI compatible proxy in front of the Cursor web chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/api"
	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var flags struct {
	configPath string
	envPath    string
	noWatch    bool
	checkOnly  bool
}

var rootCmd = &cobra.Command{
	Use:   "cursor-proxy",
	Short: "OpenAI compatible proxy for the Cursor web chat",
	Long: `Serve /v1/chat/completions and /v1/models backed by the Cursor web chat.

Settings are read from the YAML file given by --config, then overridden by the
environment (API_KEY, MODELS, MAX_RETRIES, PORT, DEBUG, PROXY_URL, SCRIPT_URL, FP).
A .env file is loaded first when present.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&flags.envPath, "env", ".env", "dotenv file loaded before the configuration")
	rootCmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "do not reload the configuration file on change")
	rootCmd.Flags().BoolVar(&flags.checkOnly, "check", false, "validate the configuration and exit")
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logging.SetupBaseLogger()

	if err := config.LoadDotEnv(flags.envPath); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.checkOnly {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}
	if err := logging.ConfigureLogOutput(cfg); err != nil {
		return err
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Infof("cursor proxy %s starting (models=%d, max-retries=%d)", Version, len(cfg.Models), cfg.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg)
	if !flags.noWatch {
		watcher := config.NewWatcher(flags.configPath, config.DefaultDebounce, server.UpdateConfig)
		go func() {
			if errWatch := watcher.Run(ctx); errWatch != nil {
				log.Errorf("config watcher stopped: %v", errWatch)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err = <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serveErr
}
