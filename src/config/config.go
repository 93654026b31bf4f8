package config

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. HMM_MAX_ITERATIONS.
const EnvPrefix = "HMM"

// Config holds the settings of the demo program.
type Config struct {
	States        int
	Dimensions    int
	Observations  int
	Time          int
	Seed          int64
	MaxIterations int
	Tolerance     float64
	Workers       int
	LogLevel      log.Level
	// ParamsFile is a YAML parameter set. Empty means the built-in example.
	ParamsFile string
	// OutputFile receives the fitted parameters as YAML. Empty disables it.
	OutputFile string
	// MetricsFile receives the fit metrics in the Prometheus text format.
	// Empty disables it.
	MetricsFile string
	// DebugAddr serves pprof and /metrics while the program runs. Empty
	// disables it.
	DebugAddr string
}

// flagBindings maps viper keys (= config file keys) to pflag names.
var flagBindings = map[string]string{
	"states":         "states",
	"dimensions":     "dimensions",
	"observations":   "observations",
	"time":           "time",
	"seed":           "seed",
	"max_iterations": "max-iterations",
	"tolerance":      "tolerance",
	"workers":        "workers",
	"log_level":      "log-level",
	"params_file":    "params-file",
	"output_file":    "output-file",
	"metrics_file":   "metrics-file",
	"debug_addr":     "debug-addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("states", 3)
	v.SetDefault("dimensions", 2)
	v.SetDefault("observations", 5)
	v.SetDefault("time", 7)
	v.SetDefault("seed", 42)
	v.SetDefault("max_iterations", 100)
	v.SetDefault("tolerance", 1e-3)
	v.SetDefault("workers", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("params_file", "")
	v.SetDefault("output_file", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("debug_addr", "")
}

// RegisterFlags adds the configuration flags, plus --config, to fs.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("config", "", "YAML configuration file")
	fs.Int("states", 3, "number of hidden states")
	fs.Int("dimensions", 2, "emission dimensions")
	fs.Int("observations", 5, "number of sequences to sample")
	fs.Int("time", 7, "length of each sampled sequence")
	fs.Int64("seed", 42, "seed for sampling and initialization")
	fs.Int("max-iterations", 100, "Baum-Welch iteration cap")
	fs.Float64("tolerance", 1e-3, "absolute log-likelihood change treated as converged")
	fs.Int("workers", 0, "sequences processed concurrently, 0 for one per CPU")
	fs.String("log-level", "info", "logrus level")
	fs.String("params-file", "", "YAML parameter set to sample from")
	fs.String("output-file", "", "write fitted parameters to this YAML file")
	fs.String("metrics-file", "", "write fit metrics to this file")
	fs.String("debug-addr", "", "serve pprof and metrics on this address")
}

// Load resolves the configuration.
// Precedence: flags > env > config file > defaults.
// fs may be nil, in which case only env, file and defaults apply.
func Load(fs *flag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	file := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			file = f.Value.String()
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		log.WithField("file", file).Debug("loaded config file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagBindings {
			if f := fs.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	level, err := log.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		States:        v.GetInt("states"),
		Dimensions:    v.GetInt("dimensions"),
		Observations:  v.GetInt("observations"),
		Time:          v.GetInt("time"),
		Seed:          v.GetInt64("seed"),
		MaxIterations: v.GetInt("max_iterations"),
		Tolerance:     v.GetFloat64("tolerance"),
		Workers:       v.GetInt("workers"),
		LogLevel:      level,
		ParamsFile:    v.GetString("params_file"),
		OutputFile:    v.GetString("output_file"),
		MetricsFile:   v.GetString("metrics_file"),
		DebugAddr:     v.GetString("debug_addr"),
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the ranges of every field.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.States <= 0 {
		errs = append(errs, fmt.Errorf("states must be positive, got %d", cfg.States))
	}
	if cfg.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions))
	}
	if cfg.Observations <= 0 {
		errs = append(errs, fmt.Errorf("observations must be positive, got %d", cfg.Observations))
	}
	if cfg.Time <= 0 {
		errs = append(errs, fmt.Errorf("time must be positive, got %d", cfg.Time))
	}
	if cfg.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max iterations must not be negative, got %d", cfg.MaxIterations))
	}
	if !(cfg.Tolerance >= 0) {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %v", cfg.Tolerance))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", cfg.Workers))
	}
	return errors.Join(errs...)
}
