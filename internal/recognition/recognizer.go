package recognition

import (
	"encoding/json"
	"image"
	"log/slog"
	"math"

	"github.com/ayusman/facultyid/internal/detector"
	"github.com/ayusman/facultyid/internal/embedder"
	"github.com/ayusman/facultyid/internal/vector"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Unknown labels a face whose best distance is not below the threshold.
const Unknown = "Unknown"

// DefaultThreshold is the Euclidean distance below which a face matches.
const DefaultThreshold = 1.2

// MatchResult is the outcome for one detected face.
type MatchResult struct {
	Box image.Rectangle
	// Label is the matched identity or Unknown.
	Label string
	// Nearest is the closest identity regardless of the threshold; empty
	// when the gallery has nothing comparable.
	Nearest  string
	Distance float64
}

// Matched reports whether the face was identified.
func (m MatchResult) Matched() bool {
	return m.Label != Unknown
}

// MarshalJSON encodes the box as [x1,y1,x2,y2] and an infinite distance as null.
func (m MatchResult) MarshalJSON() ([]byte, error) {
	var dist *float64
	if !math.IsInf(m.Distance, 0) && !math.IsNaN(m.Distance) {
		d := m.Distance
		dist = &d
	}
	return json.Marshal(struct {
		Box      [4]int   `json:"box"`
		Label    string   `json:"label"`
		Nearest  string   `json:"nearest,omitempty"`
		Distance *float64 `json:"distance"`
	}{
		Box:      [4]int{m.Box.Min.X, m.Box.Min.Y, m.Box.Max.X, m.Box.Max.Y},
		Label:    m.Label,
		Nearest:  m.Nearest,
		Distance: dist,
	})
}

// Match labels query against g using a strict less-than threshold.
func Match(query vector.Embedding, g *Gallery, threshold float64) MatchResult {
	id, dist := g.Nearest(query)
	res := MatchResult{Label: Unknown, Nearest: id, Distance: dist}
	if id != "" && dist < threshold {
		res.Label = id
	}
	return res
}

// Recognizer runs detection, embedding and matching on frames. Its model
// handles are shared process state injected at construction.
type Recognizer struct {
	detector  detector.Detector
	embedder  embedder.Embedder
	threshold float64
	log       *slog.Logger
}

// New returns a Recognizer. A non-positive threshold selects DefaultThreshold.
func New(d detector.Detector, e embedder.Embedder, threshold float64, logger *slog.Logger) *Recognizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{detector: d, embedder: e, threshold: threshold, log: logger}
}

// Threshold returns the match threshold in use.
func (r *Recognizer) Threshold() float64 {
	return r.threshold
}

// Recognize returns one MatchResult per detected face that yielded an
// embedding, in detector order.
func (r *Recognizer) Recognize(frame *gocv.Mat, g *Gallery) ([]MatchResult, error) {
	boxes, err := r.detector.Detect(frame)
	if err != nil {
		return nil, errors.Wrap(err, "detect faces")
	}

	results := make([]MatchResult, 0, len(boxes))
	for _, box := range detector.Clamp(boxes, frame.Cols(), frame.Rows()) {
		crop, ok := detector.Crop(frame, box)
		if !ok {
			crop.Close()
			continue
		}
		emb, err := r.embedder.Embed(&crop)
		crop.Close()
		if err != nil {
			if errors.Is(err, embedder.ErrNoFace) {
				r.log.Debug("no face in crop", "box", box)
				continue
			}
			return results, errors.Wrap(err, "embed face")
		}

		res := Match(emb, g, r.threshold)
		res.Box = box
		r.log.Debug("best match", "nearest", res.Nearest, "distance", res.Distance, "label", res.Label)
		results = append(results, res)
	}
	return results, nil
}
