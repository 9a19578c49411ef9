package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.Equal(t, "default", cfg.PlanID)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Contains(t, cfg.DataDir, ".formulary-engine")
	assert.Empty(t, cfg.FormularyFile)
}

func TestLoadLiteConfig_Environment(t *testing.T) {
	t.Setenv("FORMULARY_DATA_DIR", "/var/lib/formulary")
	t.Setenv("FORMULARY_FILE", "/etc/formulary/drugs.json")
	t.Setenv("FORMULARY_PLAN_ID", "plan-gold")
	t.Setenv("FORMULARY_HTTP_PORT", "9000")
	t.Setenv("FORMULARY_LOG_LEVEL", "debug")
	t.Setenv("FORMULARY_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/var/lib/formulary", cfg.DataDir)
	assert.Equal(t, "/etc/formulary/drugs.json", cfg.FormularyFile)
	assert.Equal(t, "plan-gold", cfg.PlanID)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_InvalidPortIgnored(t *testing.T) {
	t.Setenv("FORMULARY_HTTP_PORT", "not-a-port")

	cfg := LoadLiteConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)

	t.Setenv("FORMULARY_HTTP_PORT", "-1")
	cfg = LoadLiteConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/data/engine"}

	assert.Equal(t, filepath.Join("/data/engine", "feedback.db"), cfg.FeedbackDBPath())
	assert.Equal(t, filepath.Join("/data/engine", "exports"), cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "nested", "data")}

	require.NoError(t, cfg.EnsureDataDir())

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(cfg.ExportDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
