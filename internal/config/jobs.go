package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// JobsConfig controls the background reconciliation schedule.
type JobsConfig struct {
	// EnabledJobs limits which jobs run; empty means all.
	EnabledJobs []string `mapstructure:"enabledJobs"`

	PresenceSyncInterval     time.Duration `mapstructure:"presenceSyncInterval"`
	CounterReconcileInterval time.Duration `mapstructure:"counterReconcileInterval"`
	CounterBatchSize         int           `mapstructure:"counterBatchSize"`
}

func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		PresenceSyncInterval:     time.Minute,
		CounterReconcileInterval: time.Hour,
		CounterBatchSize:         1000,
	}
}

// JobsConfigHolder exposes the current jobs config with hot reload.
type JobsConfigHolder struct {
	current atomic.Value // holds JobsConfig
}

// NewJobsConfigHolder loads jobs.yml and keeps it fresh via a file watch.
func NewJobsConfigHolder() (*JobsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("jobs")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/studygrove/config")
	v.AddConfigPath("/etc/studygrove")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STUDYGROVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := unmarshalJobsConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &JobsConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(_ fsnotify.Event) {
			reloaded, err := unmarshalJobsConfig(v)
			if err != nil {
				log.Printf("jobs config reload rejected: %v", err)
				return
			}
			holder.current.Store(reloaded)
		})
	}

	return holder, nil
}

// StaticJobsConfigHolder wraps a fixed config, for tests and tools that
// have no config file to watch.
func StaticJobsConfigHolder(cfg JobsConfig) *JobsConfigHolder {
	holder := &JobsConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

// Current returns the active jobs config.
func (h *JobsConfigHolder) Current() JobsConfig {
	return h.current.Load().(JobsConfig)
}

func unmarshalJobsConfig(v *viper.Viper) (JobsConfig, error) {
	cfg := DefaultJobsConfig()
	if err := v.UnmarshalKey("jobs", &cfg); err != nil {
		return JobsConfig{}, err
	}
	cfg = cfg.withDefaults()
	return cfg, validateJobsConfig(cfg)
}

func (c JobsConfig) withDefaults() JobsConfig {
	defaults := DefaultJobsConfig()
	if c.PresenceSyncInterval <= 0 {
		c.PresenceSyncInterval = defaults.PresenceSyncInterval
	}
	if c.CounterReconcileInterval <= 0 {
		c.CounterReconcileInterval = defaults.CounterReconcileInterval
	}
	if c.CounterBatchSize <= 0 {
		c.CounterBatchSize = defaults.CounterBatchSize
	}
	return c
}

func validateJobsConfig(c JobsConfig) error {
	if c.CounterBatchSize < 0 {
		return errors.New("counterBatchSize must not be negative")
	}
	return nil
}
