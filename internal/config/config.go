package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/ergmon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultSource           = "simulated"
	DefaultPollTimeoutMs    = 1000
	DefaultSeed             = int64(42)
	DefaultTimeoutThreshold = 5
	DefaultDataDir          = "data"
	DefaultLogLevel         = "info"
)

type Config struct {
	Source           string `mapstructure:"source"`
	PollTimeoutMs    int    `mapstructure:"poll_timeout_ms"`
	Seed             int64  `mapstructure:"seed"`
	TimeoutThreshold int    `mapstructure:"timeout_threshold"`
	DataDir          string `mapstructure:"data_dir"`
	Database         string `mapstructure:"database"`
	Archive          bool   `mapstructure:"archive"`
	LogLevel         string `mapstructure:"log_level"`
	Debug            bool   `mapstructure:"debug"`
	Verbose          bool   `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("ergmon", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.String("source", DefaultSource, "Telemetry source: live or simulated")
	flags.Int("poll-timeout-ms", DefaultPollTimeoutMs, "Poll timeout in milliseconds")
	flags.Int64("seed", DefaultSeed, "Seed for the simulated source")
	flags.Int("timeout-threshold", DefaultTimeoutThreshold, "Consecutive poll timeouts before the source is considered unavailable")
	flags.String("data-dir", DefaultDataDir, "Directory for session exports")
	flags.String("database", "", "Path to the session archive database")
	flags.Bool("archive", false, "Enable the session archive")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warning or error")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("source", DefaultSource)
	v.SetDefault("poll_timeout_ms", DefaultPollTimeoutMs)
	v.SetDefault("seed", DefaultSeed)
	v.SetDefault("timeout_threshold", DefaultTimeoutThreshold)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("log_level", DefaultLogLevel)

	// Load configuration from file; ERGMON_CONFIG overrides the search path
	if path := os.Getenv("ERGMON_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ergmon")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	}

	// Override config file values with command line flags
	flags.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		v.Set(key, f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.Source {
	case "live", "simulated":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "source must be live or simulated")
	}

	if c.PollTimeoutMs <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "poll_timeout_ms must be positive")
	}

	if c.TimeoutThreshold <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "timeout_threshold must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.New(errors.ErrInvalidLogLevel)
	}

	if c.Archive && c.Database == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "archive requires a database path")
	}

	return nil
}
