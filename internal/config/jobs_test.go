package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticJobsConfigHolderFillsDefaults(t *testing.T) {
	holder := StaticJobsConfigHolder(JobsConfig{CounterBatchSize: 25})
	cfg := holder.Current()

	require.Equal(t, 25, cfg.CounterBatchSize)
	require.Equal(t, time.Minute, cfg.PresenceSyncInterval)
	require.Equal(t, time.Hour, cfg.CounterReconcileInterval)
}

func TestStaticJobsConfigHolderKeepsExplicitValues(t *testing.T) {
	holder := StaticJobsConfigHolder(JobsConfig{
		EnabledJobs:              []string{"sync_presence"},
		PresenceSyncInterval:     10 * time.Second,
		CounterReconcileInterval: 30 * time.Minute,
		CounterBatchSize:         500,
	})
	cfg := holder.Current()

	require.Equal(t, []string{"sync_presence"}, cfg.EnabledJobs)
	require.Equal(t, 10*time.Second, cfg.PresenceSyncInterval)
	require.Equal(t, 30*time.Minute, cfg.CounterReconcileInterval)
	require.Equal(t, 500, cfg.CounterBatchSize)
}
