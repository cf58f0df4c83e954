package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 25, cfg.ImageQuota)
	assert.Equal(t, 20*time.Second, cfg.CaptureBudget)
	assert.Equal(t, 300*time.Millisecond, cfg.FrameDelay)
	assert.Equal(t, 1.2, cfg.MatchThreshold)
	assert.Equal(t, 0.5, cfg.DetectConfidence)
	assert.Equal(t, "data/faculty", cfg.DataRoot)
	assert.False(t, cfg.Normalize)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"FACULTYID_DATA_ROOT":       "/srv/faces",
		"FACULTYID_IMAGE_QUOTA":     "5",
		"FACULTYID_CAPTURE_BUDGET":  "3s",
		"FACULTYID_MATCH_THRESHOLD": "0.9",
		"FACULTYID_NORMALIZE":       "true",
		"FACULTYID_CORS_ORIGINS":    "http://localhost:3000, https://attendance.example.edu",
		"FACULTYID_CAMERA_ID":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/faces", cfg.DataRoot)
	assert.Equal(t, 5, cfg.ImageQuota)
	assert.Equal(t, 3*time.Second, cfg.CaptureBudget)
	assert.Equal(t, 0.9, cfg.MatchThreshold)
	assert.True(t, cfg.Normalize)
	assert.Equal(t, 0, cfg.CameraID)
	assert.Equal(t, []string{"http://localhost:3000", "https://attendance.example.edu"}, cfg.CORSOrigins)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"FACULTYID_IMAGE_QUOTA":    "many",
		"FACULTYID_CAPTURE_BUDGET": "forever",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACULTYID_IMAGE_QUOTA")
	assert.Contains(t, err.Error(), "FACULTYID_CAPTURE_BUDGET")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quota", func(c *Config) { c.ImageQuota = 0 }},
		{"negative budget", func(c *Config) { c.CaptureBudget = -time.Second }},
		{"negative delay", func(c *Config) { c.FrameDelay = -time.Millisecond }},
		{"zero threshold", func(c *Config) { c.MatchThreshold = 0 }},
		{"confidence above one", func(c *Config) { c.DetectConfidence = 1.5 }},
		{"empty data root", func(c *Config) { c.DataRoot = "" }},
		{"zero window", func(c *Config) { c.RecognizeWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
