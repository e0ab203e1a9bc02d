package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWithNoOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("ukvd", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(nil))

	cfg := Load(v)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadAppliesFlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("ukvd", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--shards=16", "--backend=bolt"}))

	cfg := Load(v)
	assert.Equal(t, 16, cfg.Shards)
	assert.Equal(t, BackendBolt, cfg.Backend)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	fs := pflag.NewFlagSet("ukvd", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(nil))
	t.Setenv("UKV_LOG_LEVEL", "debug")

	cfg := Load(v)
	assert.Equal(t, "debug", cfg.LogLevel)
}
