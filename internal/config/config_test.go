package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/config"
)

func newViper() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, config.DatabaseEmbedded, cfg.DatabaseKind)
	assert.Equal(t, 2, cfg.DatabasePoolMin)
	assert.Equal(t, 10, cfg.DatabasePoolMax)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, int64(24*60*60*1e9), cfg.TokenTTL.Nanoseconds())
	assert.Equal(t, int64(300*1e9), cfg.HeartbeatOfflineThreshold.Nanoseconds())
	assert.Equal(t, 10, cfg.SnapshotsRetainPerEndpoint)
}

func TestLoadRequiresURLForServerKind(t *testing.T) {
	v := newViper()
	v.Set("database.kind", "server")

	_, err := config.Load(v)
	assert.Error(t, err)

	v.Set("database.url", "postgres://localhost/archsync")
	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, config.DatabaseServer, cfg.DatabaseKind)
}

func TestLoadRejectsBadPoolSizes(t *testing.T) {
	v := newViper()
	v.Set("database.pool_min_size", 10)
	v.Set("database.pool_max_size", 2)

	_, err := config.Load(v)
	assert.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	v := newViper()
	v.Set("server.port", 0)

	_, err := config.Load(v)
	assert.Error(t, err)
}
