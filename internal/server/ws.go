package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/facultyid/internal/app"
	"github.com/ayusman/facultyid/internal/recognition"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const writeWait = 5 * time.Second

// Recognizer runs a bounded live recognition session.
type Recognizer interface {
	Recognize(ctx context.Context, window time.Duration, sink recognition.Sink) (recognition.Stats, error)
}

// resultsMessage is pushed once per processed frame.
type resultsMessage struct {
	Results   []recognition.MatchResult `json:"results"`
	Timestamp int64                     `json:"timestamp"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// RecognizeHandler streams live recognition results over a WebSocket for
// the duration of one recognition window.
type RecognizeHandler struct {
	recognizer Recognizer
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

// NewRecognizeHandler creates a new RecognizeHandler. Browser upgrades are
// accepted only from origins, where an empty list or "*" allows any.
func NewRecognizeHandler(r Recognizer, origins []string, logger *slog.Logger) *RecognizeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecognizeHandler{
		recognizer: r,
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(origins)},
		log:        logger,
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// ServeHTTP handles WebSocket upgrade requests. An optional window query
// parameter (a Go duration) overrides the configured recognition window.
func (h *RecognizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "Invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sink := func(frame *gocv.Mat, results []recognition.MatchResult) bool {
		if results == nil {
			results = []recognition.MatchResult{}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(resultsMessage{Results: results, Timestamp: time.Now().UnixMilli()}); err != nil {
			h.log.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}

	stats, err := h.recognizer.Recognize(ctx, window, sink)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err != nil {
		msg := err.Error()
		if errors.Is(err, app.ErrCameraBusy) {
			msg = "Camera is busy"
		} else {
			h.log.Error("recognition stream failed", "error", err)
		}
		conn.WriteJSON(errorMessage{Error: msg})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
		return
	}

	h.log.Debug("recognition stream finished", "frames", stats.Frames, "matched", stats.Matched)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "window closed"))
}
