// Package config loads the coordinator's TOML configuration and
// watches it for changes, handing each reload to a caller-supplied
// callback, per SPEC_FULL.md §2's ambient stack.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/riftctl/rift/internal/models"
)

// EnvConfigPath is the environment variable naming the TOML file to
// load when --config-path isn't given on the command line.
const EnvConfigPath = "RIFT_CONFIG_PATH"

// Config is the coordinator's full runtime configuration.
type Config struct {
	ListenAddress  string `toml:"listen_address" validate:"required"`
	MetricsAddress string `toml:"metrics_address"`
	DataDir        string `toml:"data_dir" validate:"required"`

	JwtValidFor      time.Duration `toml:"jwt_valid_for"`
	ExchangeTokenTTL time.Duration `toml:"exchange_token_ttl"`

	MonitorInterval   time.Duration `toml:"monitor_interval"`
	PruneSchedule     string        `toml:"prune_schedule"` // cron expression
	KeepStatsForDays  int           `toml:"keep_stats_for_days"`
	KeepAlertsForDays int           `toml:"keep_alerts_for_days"`

	AllowedOrigins []string `toml:"allowed_origins"`
	LogLevel       string   `toml:"log_level"`

	// BasePermissionLevels is the per-resource-type default level every
	// caller gets absent ownership or an explicit grant (spec.md §3's
	// "base-level on that resource type"; see DESIGN.md Open Question).
	BasePermissionLevels map[models.ResourceType]string `toml:"base_permission_levels"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		ListenAddress:     ":8120",
		MetricsAddress:    ":8121",
		DataDir:           "/etc/rift",
		JwtValidFor:       24 * time.Hour,
		ExchangeTokenTTL:  60 * time.Second,
		MonitorInterval:   15 * time.Second,
		PruneSchedule:     "0 0 * * *",
		KeepStatsForDays:  14,
		KeepAlertsForDays: 90,
		LogLevel:          "info",
	}
}

var validate = validator.New()

// Load reads and parses the TOML file at path over the defaults,
// validating the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, validate.Struct(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath picks the config file: explicit flag value, else
// RIFT_CONFIG_PATH, else empty (defaults only).
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

// BaseLevels converts the string-keyed TOML map into the auth package's
// typed BaseLevels, mapping an unrecognized level name to None.
func (c Config) BaseLevels() map[models.ResourceType]models.PermissionLevel {
	out := make(map[models.ResourceType]models.PermissionLevel, len(c.BasePermissionLevels))
	for t, levelName := range c.BasePermissionLevels {
		switch levelName {
		case "Read":
			out[t] = models.PermissionRead
		case "Execute":
			out[t] = models.PermissionExecute
		case "Write":
			out[t] = models.PermissionWrite
		default:
			out[t] = models.PermissionNone
		}
	}
	return out
}

// Watcher reloads Config from path whenever it changes on disk and
// invokes onReload with the freshly parsed value (or the load error).
// Callers decide which fields, if any, to apply.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// Watch starts watching path; onReload is called (from a background
// goroutine) after every Write or Create event, with the parsed Config
// or, when loading fails (e.g. a malformed write mid-save), the load
// error; keeping the last-good config in that case is up to the caller.
func Watch(path string, onReload func(Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				onReload(cfg, err)
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

func (w *Watcher) Close() error { return w.fsw.Close() }
