package recognition

import (
	"context"
	"time"

	"github.com/ayusman/facultyid/internal/capture"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultWindow bounds a live recognition session.
const DefaultWindow = 10 * time.Second

// Sink receives each processed frame with its results. The frame is only
// valid for the duration of the call. Returning false ends the session.
type Sink func(frame *gocv.Mat, results []MatchResult) bool

// GallerySource returns the snapshot to match the next frame against.
type GallerySource func() *Gallery

// Stats summarizes a live session.
type Stats struct {
	Frames  int
	Faces   int
	Matched int
}

// Run opens cam and recognizes frames until the window elapses, ctx is
// cancelled, sink returns false, or a frame cannot be read. The camera is
// closed on every path. Cancellation and window expiry are not errors.
func (r *Recognizer) Run(ctx context.Context, cam capture.Camera, gallery GallerySource, window time.Duration, sink Sink) (Stats, error) {
	var stats Stats
	if window <= 0 {
		window = DefaultWindow
	}

	if err := cam.Open(); err != nil {
		return stats, errors.Wrap(err, "open camera")
	}
	defer func() {
		if err := cam.Close(); err != nil {
			r.log.Warn("failed to close camera", "error", err)
		}
	}()

	deadline := time.Now().Add(window)
	for {
		if ctx.Err() != nil {
			r.log.Info("recognition cancelled", "frames", stats.Frames)
			return stats, nil
		}
		if !time.Now().Before(deadline) {
			r.log.Info("recognition window closed", "window", window, "frames", stats.Frames)
			return stats, nil
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			return stats, errors.Wrap(err, "read frame")
		}

		results, err := r.Recognize(frame, gallery())
		if err != nil {
			frame.Close()
			return stats, err
		}

		stats.Frames++
		stats.Faces += len(results)
		for _, res := range results {
			if res.Matched() {
				stats.Matched++
			}
		}

		cont := true
		if sink != nil {
			cont = sink(frame, results)
		}
		frame.Close()
		if !cont {
			return stats, nil
		}
	}
}
