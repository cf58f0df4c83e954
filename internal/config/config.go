// Package config loads runtime settings for facultyid from defaults,
// an optional .env file and FACULTYID_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvPrefix is prepended to every environment variable name read by Load.
const EnvPrefix = "FACULTYID_"

// Default tunables.
const (
	DefaultDataRoot         = "data/faculty"
	DefaultDetectConfidence = 0.5
	DefaultImageQuota       = 25
	DefaultCaptureBudget    = 20 * time.Second
	DefaultFrameDelay       = 300 * time.Millisecond
	DefaultMatchThreshold   = 1.2
	DefaultRecognizeWindow  = 10 * time.Second
	DefaultRefreshInterval  = time.Minute
	DefaultEmbedInputSize   = 112
	DefaultMinFaceSize      = 20
	DefaultAddr             = ":8000"
)

// Config holds every recognized option.
type Config struct {
	DataRoot string
	CameraID int

	DetectorModel    string
	DetectorConfig   string
	DetectConfidence float64

	EmbedderModel  string
	EmbedInputSize int
	MinFaceSize    int
	CascadePath    string

	ImageQuota    int
	CaptureBudget time.Duration
	FrameDelay    time.Duration

	MatchThreshold  float64
	Normalize       bool
	RecognizeWindow time.Duration
	RefreshInterval time.Duration

	Addr        string
	StaticDir   string
	CORSOrigins []string
	LogLevel    string
}

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		DataRoot:         DefaultDataRoot,
		DetectorModel:    "models/res10_300x300_ssd_iter_140000.caffemodel",
		DetectorConfig:   "models/deploy.prototxt",
		DetectConfidence: DefaultDetectConfidence,
		EmbedderModel:    "models/face_recognition_sface_2021dec.onnx",
		EmbedInputSize:   DefaultEmbedInputSize,
		MinFaceSize:      DefaultMinFaceSize,
		ImageQuota:       DefaultImageQuota,
		CaptureBudget:    DefaultCaptureBudget,
		FrameDelay:       DefaultFrameDelay,
		MatchThreshold:   DefaultMatchThreshold,
		RecognizeWindow:  DefaultRecognizeWindow,
		RefreshInterval:  DefaultRefreshInterval,
		Addr:             DefaultAddr,
		CORSOrigins:      []string{"*"},
		LogLevel:         "info",
	}
}

// Load returns the defaults overridden by a .env file in the working
// directory (if present) and then by the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q: not an integer", EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q: not a number", EnvPrefix, key, v))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q: not a duration", EnvPrefix, key, v))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q: not a boolean", EnvPrefix, key, v))
				return
			}
			*dst = b
		}
	}

	str("DATA_ROOT", &c.DataRoot)
	integer("CAMERA_ID", &c.CameraID)
	str("DETECTOR_MODEL", &c.DetectorModel)
	str("DETECTOR_CONFIG", &c.DetectorConfig)
	float("DETECT_CONFIDENCE", &c.DetectConfidence)
	str("EMBEDDER_MODEL", &c.EmbedderModel)
	integer("EMBED_INPUT_SIZE", &c.EmbedInputSize)
	integer("MIN_FACE_SIZE", &c.MinFaceSize)
	str("CASCADE_PATH", &c.CascadePath)
	integer("IMAGE_QUOTA", &c.ImageQuota)
	duration("CAPTURE_BUDGET", &c.CaptureBudget)
	duration("FRAME_DELAY", &c.FrameDelay)
	float("MATCH_THRESHOLD", &c.MatchThreshold)
	boolean("NORMALIZE", &c.Normalize)
	duration("RECOGNIZE_WINDOW", &c.RecognizeWindow)
	duration("REFRESH_INTERVAL", &c.RefreshInterval)
	str("ADDR", &c.Addr)
	str("STATIC_DIR", &c.StaticDir)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}

	if len(errs) > 0 {
		return errors.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports the first option that cannot drive a pipeline run.
func (c Config) Validate() error {
	switch {
	case c.DataRoot == "":
		return errors.New("data root must not be empty")
	case c.ImageQuota <= 0:
		return errors.Errorf("image quota must be positive, got %d", c.ImageQuota)
	case c.CaptureBudget <= 0:
		return errors.Errorf("capture budget must be positive, got %s", c.CaptureBudget)
	case c.FrameDelay < 0:
		return errors.Errorf("frame delay must not be negative, got %s", c.FrameDelay)
	case c.MatchThreshold <= 0:
		return errors.Errorf("match threshold must be positive, got %v", c.MatchThreshold)
	case c.DetectConfidence < 0 || c.DetectConfidence > 1:
		return errors.Errorf("detection confidence must be within [0,1], got %v", c.DetectConfidence)
	case c.EmbedInputSize <= 0:
		return errors.Errorf("embedder input size must be positive, got %d", c.EmbedInputSize)
	case c.RecognizeWindow <= 0:
		return errors.Errorf("recognition window must be positive, got %s", c.RecognizeWindow)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
