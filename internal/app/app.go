// Package app wires the capture source, model adapters, embedding store and
// pipelines into the facultyid application.
package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facultyid/internal/capture"
	"github.com/ayusman/facultyid/internal/config"
	"github.com/ayusman/facultyid/internal/detector"
	"github.com/ayusman/facultyid/internal/embedder"
	"github.com/ayusman/facultyid/internal/enrollment"
	"github.com/ayusman/facultyid/internal/recognition"
	"github.com/ayusman/facultyid/internal/store"
	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
)

// ErrCameraBusy is returned when a pipeline is already using the camera.
var ErrCameraBusy = errors.New("camera is busy")

// Deps are the adapters an App runs on. The App takes ownership and closes
// the detector and embedder in Close.
type Deps struct {
	Camera   capture.Camera
	Detector detector.Detector
	Embedder embedder.Embedder
	Store    *store.Store
}

// App is the main application that orchestrates registration and recognition.
type App struct {
	config     config.Config
	deps       Deps
	enroller   *enrollment.Enroller
	recognizer *recognition.Recognizer
	log        *slog.Logger

	// lease holds a token while a pipeline owns the camera.
	lease chan struct{}

	mu        sync.RWMutex
	gallery   *recognition.Gallery
	scheduler *gocron.Scheduler
	started   time.Time
}

// New creates an App over deps and loads the initial gallery.
func New(cfg config.Config, deps Deps, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Camera == nil || deps.Detector == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, errors.New("app: camera, detector, embedder and store are required")
	}

	a := &App{
		config: cfg,
		deps:   deps,
		enroller: enrollment.New(deps.Camera, deps.Detector, deps.Embedder, deps.Store, enrollment.Options{
			ImageQuota:    cfg.ImageQuota,
			CaptureBudget: cfg.CaptureBudget,
			FrameDelay:    cfg.FrameDelay,
		}, logger.With("component", "enrollment")),
		recognizer: recognition.New(deps.Detector, deps.Embedder, cfg.MatchThreshold, logger.With("component", "recognition")),
		log:        logger,
		lease:      make(chan struct{}, 1),
		started:    time.Now(),
	}

	if err := a.ReloadGallery(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromConfig opens the store, the camera and the DNN adapters named by
// cfg. A model that cannot be loaded is a startup error.
func NewFromConfig(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.New(cfg.DataRoot, logger.With("component", "store"))
	if err != nil {
		return nil, err
	}

	dcfg := detector.DefaultConfig()
	dcfg.ModelPath = cfg.DetectorModel
	dcfg.ConfigPath = cfg.DetectorConfig
	dcfg.MinConfidence = cfg.DetectConfidence
	det, err := detector.NewDNNDetector(dcfg)
	if err != nil {
		return nil, errors.Wrap(err, "load face detector")
	}

	ecfg := embedder.DefaultConfig()
	ecfg.ModelPath = cfg.EmbedderModel
	ecfg.InputSize = cfg.EmbedInputSize
	ecfg.MinFaceSize = cfg.MinFaceSize
	ecfg.CascadePath = cfg.CascadePath
	emb, err := embedder.NewDNNEmbedder(ecfg)
	if err != nil {
		det.Close()
		return nil, errors.Wrap(err, "load face embedder")
	}

	logger.Info("models loaded", "detector", cfg.DetectorModel, "embedder", cfg.EmbedderModel)

	a, err := New(cfg, Deps{
		Camera:   capture.NewCamera(cfg.CameraID),
		Detector: det,
		Embedder: emb,
		Store:    st,
	}, logger)
	if err != nil {
		det.Close()
		emb.Close()
		return nil, err
	}
	return a, nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.config
}

// Store returns the embedding store.
func (a *App) Store() *store.Store {
	return a.deps.Store
}

// Uptime returns how long the App has existed.
func (a *App) Uptime() time.Duration {
	return time.Since(a.started)
}

// Gallery returns the current recognition snapshot.
func (a *App) Gallery() *recognition.Gallery {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gallery
}

// ReloadGallery rebuilds the recognition snapshot from the store.
func (a *App) ReloadGallery() error {
	records, err := a.deps.Store.LoadAll()
	if err != nil {
		return errors.Wrap(err, "load gallery")
	}
	g := recognition.NewGallery(records, a.config.Normalize)

	a.mu.Lock()
	a.gallery = g
	a.mu.Unlock()

	a.log.Debug("gallery loaded", "identities", g.Len(), "embeddings", g.Size())
	return nil
}

// List summarizes the stored identities.
func (a *App) List() ([]store.Summary, error) {
	return a.deps.Store.List()
}

// Delete removes an identity and drops it from the gallery.
func (a *App) Delete(id string) error {
	if err := a.deps.Store.Delete(id); err != nil {
		return err
	}
	return a.ReloadGallery()
}

// StartRefresh reloads the gallery every interval until Close. It picks up
// identities written by other processes sharing the data root.
func (a *App) StartRefresh(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil {
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		if err := a.ReloadGallery(); err != nil {
			a.log.Warn("gallery refresh failed", "error", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "schedule gallery refresh")
	}
	s.StartAsync()
	a.scheduler = s

	a.log.Info("gallery refresh scheduled", "interval", interval)
	return nil
}

// Close stops the refresh job and releases the model adapters.
func (a *App) Close() error {
	a.mu.Lock()
	s := a.scheduler
	a.scheduler = nil
	a.mu.Unlock()
	if s != nil {
		s.Stop()
	}

	var firstErr error
	if err := a.deps.Detector.Close(); err != nil {
		a.log.Error("error closing detector", "error", err)
		firstErr = err
	}
	if err := a.deps.Embedder.Close(); err != nil {
		a.log.Error("error closing embedder", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
