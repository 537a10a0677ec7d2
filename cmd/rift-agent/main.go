// Command rift-agent runs on a managed host and answers the
// coordinator's agent protocol (spec.md §4.10, §6): a single HTTP POST
// endpoint taking an agentproto.Request, authenticated with a bearer
// passkey, backed by the local Docker daemon and host stats.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds the agent's full runtime configuration, resolved from
// flags with environment-variable fallbacks — the same precedence
// cmd/pulse-host-agent/main.go uses.
type Config struct {
	ListenAddress string
	Passkey       string
	RepoDir       string
	LogLevel      string
}

func main() {
	cfg, showVersion, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Printf("rift-agent %s\n", Version)
		os.Exit(0)
	}

	if err := run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	docker, err := newDockerRuntime()
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer docker.Close()

	a := &agent{
		docker:  docker,
		repoDir: cfg.RepoDir,
		log:     logger,
	}

	srv := newServer(cfg.ListenAddress, cfg.Passkey, a, &logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddress).Str("version", Version).Msg("rift-agent listening")
		if err := srv.ListenAndServe(); err != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info().Msg("rift-agent stopped")
	return nil
}

func parseConfig(args []string, getenv func(string) string) (Config, bool, error) {
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	fs := flag.NewFlagSet("rift-agent", flag.ContinueOnError)
	listenFlag := fs.String("listen-address", envOr(env("RIFT_AGENT_LISTEN_ADDRESS"), ":8130"), "address the agent HTTP endpoint listens on")
	passkeyFlag := fs.String("passkey", env("RIFT_AGENT_PASSKEY"), "bearer passkey the coordinator must present (required)")
	repoDirFlag := fs.String("repo-dir", envOr(env("RIFT_AGENT_REPO_DIR"), "/var/lib/rift-agent/repos"), "directory repos are cloned into")
	logLevelFlag := fs.String("log-level", envOr(env("RIFT_AGENT_LOG_LEVEL"), "info"), "log level: debug, info, warn, error")
	showVersion := fs.Bool("version", false, "print the agent version and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, false, err
	}
	if *showVersion {
		return Config{}, true, nil
	}

	passkey := strings.TrimSpace(*passkeyFlag)
	if passkey == "" {
		return Config{}, false, fmt.Errorf("a passkey is required (via --passkey or RIFT_AGENT_PASSKEY)")
	}

	return Config{
		ListenAddress: *listenFlag,
		Passkey:       passkey,
		RepoDir:       *repoDirFlag,
		LogLevel:      *logLevelFlag,
	}, false, nil
}

func envOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
