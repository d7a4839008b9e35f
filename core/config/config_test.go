package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/certward/core/config"
)

type testConfig struct {
	Name    string        `env:"CONFIG_TEST_NAME" envDefault:"certward"`
	Enabled bool          `env:"CONFIG_TEST_ENABLED" envDefault:"true"`
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"30s"`
}

type requiredConfig struct {
	Value string `env:"CONFIG_TEST_REQUIRED_VALUE,required"`
}

func TestLoadDefaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "certward", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadCachesPerType(t *testing.T) {
	var first testConfig
	require.NoError(t, config.Load(&first))

	// Changing the environment after the first load has no effect.
	t.Setenv("CONFIG_TEST_NAME", "changed")

	var second testConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, first, second)
}

func TestLoadRequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	assert.Error(t, err)
}

func TestMustLoadPanics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
