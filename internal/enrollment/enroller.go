// Package enrollment captures a bounded set of face embeddings for one
// faculty member and persists it to the embedding store.
package enrollment

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayusman/facultyid/internal/capture"
	"github.com/ayusman/facultyid/internal/detector"
	"github.com/ayusman/facultyid/internal/embedder"
	"github.com/ayusman/facultyid/internal/store"
	"github.com/ayusman/facultyid/internal/vector"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture limits used when Options leaves them unset.
const (
	DefaultImageQuota    = 25
	DefaultCaptureBudget = 20 * time.Second
	DefaultFrameDelay    = 300 * time.Millisecond
)

// State is a phase of a registration run.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StopReason records why capture ended.
type StopReason string

const (
	StopQuota        StopReason = "quota"
	StopTimeout      StopReason = "timeout"
	StopCancelled    StopReason = "cancelled"
	StopSourceFailed StopReason = "source_failed"
)

// FrameHook is called with every frame read during capture, the number of
// boxes found in it and the running capture count. Returning false cancels
// the run. The frame is only valid for the duration of the call.
type FrameHook func(frame *gocv.Mat, faces int, count int) bool

// Options tune a registration run.
type Options struct {
	ImageQuota    int
	CaptureBudget time.Duration
	FrameDelay    time.Duration
	// OnFrame, when set, sees each frame after detection.
	OnFrame FrameHook
	// OnCapture, when set, is called after each accepted embedding.
	OnCapture func(count, quota int)
}

func (o Options) withDefaults() Options {
	if o.ImageQuota <= 0 {
		o.ImageQuota = DefaultImageQuota
	}
	if o.CaptureBudget <= 0 {
		o.CaptureBudget = DefaultCaptureBudget
	}
	if o.FrameDelay < 0 {
		o.FrameDelay = 0
	}
	return o
}

// Result describes a finished registration run.
type Result struct {
	RunID      string
	Identity   string
	Embeddings []vector.Embedding
	Count      int
	StopReason StopReason
	Duration   time.Duration
}

// Enroller runs registrations against a camera with shared model adapters.
type Enroller struct {
	camera   capture.Camera
	detector detector.Detector
	embedder embedder.Embedder
	store    *store.Store
	opts     Options
	log      *slog.Logger
}

// New returns an Enroller. A zero quota or budget selects the package
// default; a zero frame delay disables throttling.
func New(cam capture.Camera, d detector.Detector, e embedder.Embedder, st *store.Store, opts Options, logger *slog.Logger) *Enroller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enroller{
		camera:   cam,
		detector: d,
		embedder: e,
		store:    st,
		opts:     opts.withDefaults(),
		log:      logger,
	}
}

// Options returns the effective options.
func (e *Enroller) Options() Options {
	return e.opts
}

// Register captures embeddings for id and overwrites its stored set. It
// uses the Enroller's options.
func (e *Enroller) Register(ctx context.Context, id string) (Result, error) {
	return e.RegisterWith(ctx, id, e.opts)
}

// RegisterWith is Register with per-run options, typically to attach
// progress or preview callbacks.
//
// If the camera cannot be opened nothing is written. Once capture has
// started the accumulated set is always persisted, even when capture ends
// on a read failure or cancellation; zero embeddings is a valid outcome.
// Crops are staged and replace the previous ones only after the set is saved.
func (e *Enroller) RegisterWith(ctx context.Context, id string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	res := Result{RunID: uuid.NewString(), Identity: id}
	start := time.Now()

	if err := store.ValidateIdentity(id); err != nil {
		return res, err
	}

	log := e.log.With("identity", id, "run_id", res.RunID)
	state := StateIdle
	log.Debug("opening camera", "state", state)

	if err := e.camera.Open(); err != nil {
		return res, errors.Wrap(err, "open camera")
	}
	defer func() {
		if err := e.camera.Close(); err != nil {
			log.Warn("failed to close camera", "error", err)
		}
	}()

	if _, err := e.store.StageImages(id); err != nil {
		return res, err
	}

	state = StateCapturing
	log.Info("registration started", "state", state, "quota", opts.ImageQuota, "budget", opts.CaptureBudget)

	set, reason := e.capture(ctx, id, opts, log)
	res.Embeddings = set
	res.Count = len(set)
	res.StopReason = reason

	state = StateFinalizing
	log.Debug("finalizing", "state", state, "count", res.Count, "stop_reason", reason)
	if err := e.store.Save(id, set); err != nil {
		if derr := e.store.DiscardImages(id); derr != nil {
			log.Warn("failed to discard staged crops", "error", derr)
		}
		res.Duration = time.Since(start)
		return res, err
	}
	if err := e.store.CommitImages(id); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	state = StateDone
	res.Duration = time.Since(start)
	log.Info("registration finished",
		"state", state,
		"count", res.Count,
		"stop_reason", res.StopReason,
		"duration", res.Duration,
	)
	return res, nil
}

// capture runs the CAPTURING phase and returns the accumulated set.
func (e *Enroller) capture(ctx context.Context, id string, opts Options, log *slog.Logger) ([]vector.Embedding, StopReason) {
	set := make([]vector.Embedding, 0, opts.ImageQuota)
	deadline := time.Now().Add(opts.CaptureBudget)

	for {
		if ctx.Err() != nil {
			return set, StopCancelled
		}
		if !time.Now().Before(deadline) {
			return set, StopTimeout
		}

		frame, err := e.camera.ReadFrame()
		if err != nil {
			log.Warn("frame read failed, finalizing partial set", "error", err, "count", len(set))
			return set, StopSourceFailed
		}

		boxes, err := e.detector.Detect(frame)
		if err != nil {
			log.Warn("detection failed", "error", err)
			boxes = nil
		}
		boxes = detector.Clamp(boxes, frame.Cols(), frame.Rows())

		for _, box := range boxes {
			crop, ok := detector.Crop(frame, box)
			if !ok {
				crop.Close()
				continue
			}

			emb, err := e.embedder.Embed(&crop)
			if err != nil {
				crop.Close()
				if errors.Is(err, embedder.ErrNoFace) {
					log.Debug("no face in crop", "box", box)
				} else {
					log.Warn("embedding failed", "box", box, "error", err)
				}
				continue
			}

			set = append(set, emb)
			path := e.store.StagedImagePath(id, len(set))
			if !gocv.IMWrite(path, crop) {
				log.Warn("failed to write crop", "path", path)
			}
			crop.Close()

			if opts.OnCapture != nil {
				opts.OnCapture(len(set), opts.ImageQuota)
			}
			if len(set) >= opts.ImageQuota {
				break
			}
		}

		keepGoing := true
		if opts.OnFrame != nil {
			keepGoing = opts.OnFrame(frame, len(boxes), len(set))
		}
		frame.Close()

		if len(set) >= opts.ImageQuota {
			return set, StopQuota
		}
		if !keepGoing {
			return set, StopCancelled
		}

		if delay := min(opts.FrameDelay, time.Until(deadline)); delay > 0 {
			select {
			case <-ctx.Done():
				return set, StopCancelled
			case <-time.After(delay):
			}
		}
	}
}
