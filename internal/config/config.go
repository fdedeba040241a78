// Package config loads the sheetdeps YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/vogtb/go-sheetdeps/packages/depgraph"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Build   BuildConfig   `yaml:"build"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// BuildConfig tunes dependency builds and the stores they produce
type BuildConfig struct {
	Workers      int  `yaml:"workers" validate:"gte=1,lte=256"`
	StridedRuns  bool `yaml:"strided_runs"`
	MinRunLength int  `yaml:"min_run_length" validate:"gte=2"`
	MergeWindow  int  `yaml:"merge_window" validate:"gte=1,lte=4096"`
}

// MetricsConfig controls the prometheus endpoint of the watch command.
// an empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Build: BuildConfig{
			Workers:      min(max(runtime.GOMAXPROCS(0), 1), 256),
			StridedRuns:  true,
			MinRunLength: depgraph.DefaultMinRunLength,
			MergeWindow:  depgraph.DefaultMergeWindow,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. an empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(msgs...))
}

// StoreOptions converts the build section into EdgeStore options
func (c Config) StoreOptions() []depgraph.StoreOption {
	return []depgraph.StoreOption{
		depgraph.WithStridedRuns(c.Build.StridedRuns),
		depgraph.WithMinRunLength(c.Build.MinRunLength),
		depgraph.WithMergeWindow(c.Build.MergeWindow),
	}
}

// AnalyzerOptions converts the build section into Analyzer options
func (c Config) AnalyzerOptions() []depgraph.AnalyzerOption {
	return []depgraph.AnalyzerOption{
		depgraph.WithWorkers(c.Build.Workers),
		depgraph.WithStoreOptions(c.StoreOptions()...),
	}
}
