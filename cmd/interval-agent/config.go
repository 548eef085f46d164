package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mdblp/interval-sync/schema"
)

// Config of the sync agent, read from a YAML file and INTERVAL_AGENT_* env variables
type Config struct {
	Endpoints       []string      `mapstructure:"endpoints"`
	SourceURL       string        `mapstructure:"source_url"`
	UserID          string        `mapstructure:"user_id"`
	DeviceSource    string        `mapstructure:"device_source"`
	Metrics         []string      `mapstructure:"metrics"`
	Interval        time.Duration `mapstructure:"interval"`
	ResumeThreshold time.Duration `mapstructure:"resume_threshold"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	LogFile         string        `mapstructure:"log_file"`
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("endpoints", []string{"http://localhost:3000/api", "http://127.0.0.1:3000/api", "http://10.0.2.2:3000/api"})
	v.SetDefault("source_url", "http://localhost:8765")
	v.SetDefault("user_id", schema.DefaultUserID)
	v.SetDefault("device_source", schema.DefaultDeviceSource)
	v.SetDefault("metrics", []string{schema.Steps.Name, schema.HeartRate.Name, schema.Hrv.Name})
	v.SetDefault("interval", 5*time.Minute)
	v.SetDefault("resume_threshold", 4*time.Minute)
	v.SetDefault("probe_timeout", 5*time.Second)
	v.SetDefault("submit_timeout", 10*time.Second)
	v.SetDefault("read_timeout", 10*time.Second)
	v.SetDefault("log_file", "")
}

// LoadConfig reads configPath when set, else config.yaml from ~/.config/interval-agent or the
// working directory. A missing default file is not an error. Flags override everything.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/interval-agent")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INTERVAL_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindFlags binds the flags named like a config key, "source-url" sets "source_url"
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(flag *pflag.Flag) {
		key := strings.ReplaceAll(flag.Name, "-", "_")
		if !isConfigKey(key) {
			return
		}
		if bindErr := v.BindPFlag(key, flag); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

func isConfigKey(key string) bool {
	switch key {
	case "endpoints", "source_url", "user_id", "device_source", "metrics", "interval",
		"resume_threshold", "probe_timeout", "submit_timeout", "read_timeout", "log_file":
		return true
	}
	return false
}

// ValidateConfig validates the configuration values
func ValidateConfig(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("endpoints cannot be empty")
	}
	if cfg.SourceURL == "" {
		return errors.New("source_url cannot be empty")
	}
	if _, err := cfg.MetricDefinitions(); err != nil {
		return err
	}
	if cfg.Interval < time.Minute {
		return fmt.Errorf("interval must be at least 1m, got %s", cfg.Interval)
	}
	if cfg.ResumeThreshold <= 0 || cfg.ResumeThreshold > cfg.Interval {
		return fmt.Errorf("resume_threshold must be in ]0, interval], got %s", cfg.ResumeThreshold)
	}
	if cfg.ProbeTimeout <= 0 || cfg.SubmitTimeout <= 0 || cfg.ReadTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// MetricDefinitions resolves the configured metric names
func (c *Config) MetricDefinitions() ([]schema.MetricDefinition, error) {
	if len(c.Metrics) == 0 {
		return nil, errors.New("metrics cannot be empty")
	}
	defs := make([]schema.MetricDefinition, 0, len(c.Metrics))
	for _, name := range c.Metrics {
		def, found := schema.MetricByName(name)
		if !found {
			return nil, fmt.Errorf("unknown metric %q", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
