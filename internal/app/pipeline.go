package app

import (
	"context"
	"time"

	"github.com/ayusman/facultyid/internal/enrollment"
	"github.com/ayusman/facultyid/internal/recognition"
)

// acquire takes the camera lease without waiting.
func (a *App) acquire() bool {
	select {
	case a.lease <- struct{}{}:
		return true
	default:
		return false
	}
}

func (a *App) release() {
	<-a.lease
}

// Register runs one registration for id and swaps in a gallery that
// includes the new set. It fails with ErrCameraBusy while another pipeline
// holds the camera.
func (a *App) Register(ctx context.Context, id string) (enrollment.Result, error) {
	return a.RegisterWith(ctx, id, nil, nil)
}

// RegisterWith is Register with optional progress and preview callbacks.
func (a *App) RegisterWith(ctx context.Context, id string, onCapture func(count, quota int), onFrame enrollment.FrameHook) (enrollment.Result, error) {
	if !a.acquire() {
		return enrollment.Result{Identity: id}, ErrCameraBusy
	}
	defer a.release()

	opts := a.enroller.Options()
	opts.OnCapture = onCapture
	opts.OnFrame = onFrame

	res, err := a.enroller.RegisterWith(ctx, id, opts)
	if err != nil {
		return res, err
	}

	if err := a.ReloadGallery(); err != nil {
		a.log.Warn("gallery reload after registration failed", "identity", id, "error", err)
	}
	return res, nil
}

// Recognize runs live recognition for window against the current gallery.
// A non-positive window selects the configured one.
func (a *App) Recognize(ctx context.Context, window time.Duration, sink recognition.Sink) (recognition.Stats, error) {
	if !a.acquire() {
		return recognition.Stats{}, ErrCameraBusy
	}
	defer a.release()

	if window <= 0 {
		window = a.config.RecognizeWindow
	}

	a.log.Info("recognition started", "window", window, "identities", a.Gallery().Len(), "threshold", a.recognizer.Threshold())
	stats, err := a.recognizer.Run(ctx, a.deps.Camera, a.Gallery, window, sink)
	if err != nil {
		return stats, err
	}
	a.log.Info("recognition finished", "frames", stats.Frames, "faces", stats.Faces, "matched", stats.Matched)
	return stats, nil
}
