package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// appName is the single source of truth for the application name.
// All derived identifiers (env vars, config paths, error messages) are computed from it.
const appName = "abstriker"

// configFileName is the file looked up in the config directory.
const configFileName = "config.yml"

// Derived env var names, computed once at init from appName.
var (
	envConfigDir   = strings.ToUpper(appName) + "_CONFIG_DIR"
	envPaths       = strings.ToUpper(appName) + "_PATHS"
	envEnabled     = strings.ToUpper(appName) + "_ENABLED"
	envLogLevel    = strings.ToUpper(appName) + "_LOG_LEVEL"
	envLogFormat   = strings.ToUpper(appName) + "_LOG_FORMAT"
	envCacheSize   = strings.ToUpper(appName) + "_CACHE_SIZE"
	envMetricsAddr = strings.ToUpper(appName) + "_METRICS_ADDR"
)

// Config is the content of config.yml after env overrides and defaults.
type Config struct {
	Enabled    bool             `yaml:"enabled"`
	Log        LogConfig        `yaml:"log"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Paths      []string         `yaml:"paths" validate:"dive,required"`
	Watch      WatchConfig      `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

type ClassifierConfig struct {
	CacheSize int `yaml:"cache_size" validate:"gte=0"`
}

type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce" validate:"gte=0"`
	MetricsAddr string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// defaultConfig returns the configuration used when no file sets a key.
func defaultConfig() Config {
	return Config{
		Enabled: true,
		Log:     LogConfig{Level: "warn", Format: "console"},
		Watch:   WatchConfig{Debounce: 250 * time.Millisecond},
	}
}

// resolveConfigDir returns the base config directory for the application.
// Priority: $<APPNAME>_CONFIG_DIR > $XDG_CONFIG_HOME/<appName> > ~/.config/<appName>
func resolveConfigDir() (string, error) {
	if v := os.Getenv(envConfigDir); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// loadConfig reads the config file at path. An empty path means the default
// file in the config directory, which may be missing.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := resolveConfigDir()
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(dir, configFileName)
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over the file.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envEnabled); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("$%s: %w", envEnabled, err)
		}
		cfg.Enabled = b
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv(envCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("$%s: %w", envCacheSize, err)
		}
		cfg.Classifier.CacheSize = n
	}
	if v := os.Getenv(envMetricsAddr); v != "" {
		cfg.Watch.MetricsAddr = v
	}
	cfg.Paths = append(cfg.Paths, splitColon(os.Getenv(envPaths))...)
	return nil
}

var validate = validator.New()

func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid value %v for %s (%s)", fe.Value(), fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// newLogger builds the logger described by cfg, writing to w.
func newLogger(cfg LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// sourceExts lists the extensions picked up when a directory is scanned.
var sourceExts = map[string]bool{".rb": true, ".yml": true, ".yaml": true}

// resolveSources expands args (or the configured paths when args is empty)
// into the files to check. Directories are scanned recursively and their
// files sorted; explicitly named files are kept as-is (errors will surface at
// read time with a clear message).
func resolveSources(args []string, cfg Config) ([]string, error) {
	paths := args
	if len(paths) == 0 {
		paths = cfg.Paths
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf(
			"no sources given: pass files or directories, set 'paths' in %s, or set $%s",
			configFileName, envPaths,
		)
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := scanDir(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// scanDir returns the sorted source files below dir.
func scanDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if sourceExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// splitColon splits a colon-separated string, filtering empty parts.
func splitColon(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
