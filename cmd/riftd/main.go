// Command riftd is the coordinator ("core") process: it serves the
// HTTP surface from spec.md §6, runs the monitor loop, and owns every
// process-wide singleton named in spec.md §9 ("Global state").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/riftctl/rift/internal/config"
	"github.com/riftctl/rift/internal/updatelog"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "riftd",
	Short:   "riftd is the rift coordinator",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("riftd %s\n", Version)
	},
}

// migrateCmd runs the startup maintenance sweep (spec.md §9's Open
// Question recommendation) standalone, without bringing up the HTTP
// surface — useful after an unclean shutdown when an operator wants the
// abandoned-Update cleanup applied before restarting the service.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Finalize abandoned InProgress updates left by an unclean shutdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		st, records, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline := updatelog.NewPipeline(records, updatelog.NewHub(), st.Now)
		if err := pipeline.SweepAbandoned(); err != nil {
			return fmt.Errorf("sweeping abandoned updates: %w", err)
		}
		fmt.Println("finalized abandoned updates")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "path to the TOML config file (default: "+config.EnvConfigPath+")")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	log.Info().Str("version", Version).Str("listen_address", cfg.ListenAddress).Msg("starting rift coordinator")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := wire(cfg)
	if err != nil {
		return fmt.Errorf("wiring coordinator: %w", err)
	}
	defer app.store.Close()

	if err := app.pipeline.SweepAbandoned(); err != nil {
		log.Error().Err(err).Msg("sweeping abandoned updates")
	}

	go app.updateHub.Run()
	app.scheduler.Start()
	defer app.scheduler.Stop()

	startMetricsServer(ctx, cfg.MetricsAddress, app.actions)

	srv := app.httpServer(cfg.ListenAddress)
	go func() {
		log.Info().Str("addr", cfg.ListenAddress).Msg("http surface listening")
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	configWatcher, err := config.Watch(config.ResolvePath(configPath), func(reloaded config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("config reload failed, keeping last-good config")
			return
		}
		log.Info().Dur("monitor_interval", reloaded.MonitorInterval).Msg("config file changed (live reload applies to a future restart for scheduler-bound fields)")
	})
	if err != nil {
		log.Warn().Err(err).Msg("config file watch not started (no file configured or unreadable)")
	} else {
		defer configWatcher.Close()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	return nil
}
