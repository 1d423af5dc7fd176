package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Port    int      `env:"SAMPLE_PORT" envDefault:"8080"`
	Name    string   `env:"SAMPLE_NAME" envDefault:"storefront"`
	Brokers []string `env:"SAMPLE_BROKERS" envDefault:"a:1,b:2" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sample
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "storefront", cfg.Name)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Brokers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "9090")

	var cfg sample
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "not-a-number")

	var cfg sample
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadWithDotenv_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SAMPLE_NAME=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SAMPLE_NAME") })

	var cfg sample
	require.NoError(t, LoadWithDotenv(&cfg, path))
	assert.Equal(t, "from-dotenv", cfg.Name)
}

func TestLoadWithDotenv_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SAMPLE_PORT=1111\n"), 0o600))
	t.Setenv("SAMPLE_PORT", "2222")

	var cfg sample
	require.NoError(t, LoadWithDotenv(&cfg, path))
	assert.Equal(t, 2222, cfg.Port)
}

func TestLoadWithDotenv_MissingFileIgnored(t *testing.T) {
	var cfg sample
	require.NoError(t, LoadWithDotenv(&cfg, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, 8080, cfg.Port)
}
