package main

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var cfg Config
	_ = envconfig.Process("QUIVER_TEST_UNSET", &cfg)
	cfg.ReferencePath = "/data/atlas"
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, envconfig.Process("QUIVER_TEST_UNSET", &cfg))

	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr)
	assert.Equal(t, "0.0.0.0:9090", cfg.MetricsAddr)
	assert.Equal(t, "pcaproject", cfg.Method)
	assert.Equal(t, 30, cfg.Dims)
	assert.Equal(t, 5, cfg.KAnchor)
	assert.Equal(t, 50, cfg.KWeight)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidateConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, ValidateConfig(&cfg))

	cfg = validConfig()
	cfg.ReferencePath = ""
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidReferencePath)

	cfg = validConfig()
	cfg.Method = "tsne"
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidMethod)

	cfg = validConfig()
	cfg.Dims = 0
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidDims)

	cfg = validConfig()
	cfg.KAnchor = -1
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidKAnchor)

	cfg = validConfig()
	cfg.LogFormat = "yaml"
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidLogFormat)

	cfg = validConfig()
	cfg.LogLevel = "trace"
	assert.ErrorIs(t, ValidateConfig(&cfg), ErrInvalidLogLevel)
}

func TestBuildGRPCServerOptions(t *testing.T) {
	cfg := validConfig()
	opts := cfg.BuildGRPCServerOptions()
	assert.Len(t, opts, 3)
}
