package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/facultyid/internal/app"
	"github.com/ayusman/facultyid/internal/enrollment"
	"github.com/ayusman/facultyid/internal/recognition"
	"github.com/ayusman/facultyid/internal/store"
	"github.com/gorilla/websocket"
)

// fakeService scripts the application surface for handler tests.
type fakeService struct {
	mu      sync.Mutex
	frames  [][]recognition.MatchResult
	recErr  error
	window  time.Duration
	regErr  error
	summary []store.Summary
}

func (f *fakeService) Register(ctx context.Context, id string) (enrollment.Result, error) {
	if f.regErr != nil {
		return enrollment.Result{}, f.regErr
	}
	return enrollment.Result{RunID: "run", Identity: id, Count: 3, StopReason: enrollment.StopQuota}, nil
}

func (f *fakeService) List() ([]store.Summary, error) {
	return f.summary, nil
}

func (f *fakeService) Delete(id string) error {
	return store.ErrNotFound
}

func (f *fakeService) Recognize(ctx context.Context, window time.Duration, sink recognition.Sink) (recognition.Stats, error) {
	f.mu.Lock()
	f.window = window
	f.mu.Unlock()
	if f.recErr != nil {
		return recognition.Stats{}, f.recErr
	}
	var stats recognition.Stats
	for _, results := range f.frames {
		stats.Frames++
		if !sink(nil, results) {
			break
		}
	}
	return stats, nil
}

func (f *fakeService) lastWindow() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/register/F1", "/api/identities"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{App: &fakeService{}, CORSOrigins: []string{"http://localhost:3000"}})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header, got %q", got)
		}
	})

	t.Run("preflight for register", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/register/F1", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code >= 300 {
			t.Errorf("preflight status = %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})
}

func TestServer_Routes(t *testing.T) {
	svc := &fakeService{summary: []store.Summary{{Identity: "F1", Count: 3, Dimension: 2}}}
	s := New(Config{App: svc})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register/F1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("register: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"message":"Captured 3 samples"`) {
		t.Errorf("register body = %s", rec.Body.String())
	}

	svc.regErr = app.ErrCameraBusy
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register/F1", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("register busy: expected status %d, got %d", http.StatusConflict, rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/identities", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"F1"`) {
		t.Errorf("identities: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/identities/F9", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Faculty registration</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func dialRecognize(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/recognize" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRecognizeHandler_StreamsResults(t *testing.T) {
	svc := &fakeService{frames: [][]recognition.MatchResult{
		{{Box: image.Rect(0, 0, 10, 10), Label: "F1", Nearest: "F1", Distance: 0.3}},
		nil,
	}}
	ts := httptest.NewServer(New(Config{App: svc}))
	defer ts.Close()

	conn := dialRecognize(t, ts, "?window=2s")

	var first struct {
		Results []struct {
			Box      [4]int   `json:"box"`
			Label    string   `json:"label"`
			Distance *float64 `json:"distance"`
		} `json:"results"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	if len(first.Results) != 1 || first.Results[0].Label != "F1" {
		t.Fatalf("unexpected first message %+v", first)
	}
	if first.Results[0].Box != [4]int{0, 0, 10, 10} || first.Results[0].Distance == nil {
		t.Errorf("unexpected result %+v", first.Results[0])
	}
	if first.Timestamp == 0 {
		t.Error("expected a timestamp")
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read second message: %v", err)
	}
	if !strings.Contains(string(raw), `"results":[]`) {
		t.Errorf("frames without faces should carry an empty results array, got %s", raw)
	}

	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
	if w := svc.lastWindow(); w != 2*time.Second {
		t.Errorf("window = %s, want 2s", w)
	}
}

func TestRecognizeHandler_Busy(t *testing.T) {
	svc := &fakeService{recErr: app.ErrCameraBusy}
	ts := httptest.NewServer(New(Config{App: svc}))
	defer ts.Close()

	conn := dialRecognize(t, ts, "")

	var msg errorMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error message: %v", err)
	}
	if msg.Error != "Camera is busy" {
		t.Errorf("error = %q", msg.Error)
	}
	if w := svc.lastWindow(); w != 0 {
		t.Errorf("window = %s, want the configured default", w)
	}
}

func TestRecognizeHandler_Origins(t *testing.T) {
	svc := &fakeService{}
	ts := httptest.NewServer(New(Config{App: svc, CORSOrigins: []string{"http://portal.example"}}))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/recognize"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"configured origin", "http://portal.example", true},
		{"other origin", "http://evil.example", false},
		{"no origin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("expected the upgrade to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected status %d, got %v", http.StatusForbidden, resp)
			}
		})
	}
}

func TestRecognizeHandler_InvalidWindow(t *testing.T) {
	s := New(Config{App: &fakeService{}})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recognize?window=soon", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestServer_ListenAndServeShutsDown(t *testing.T) {
	s := New(Config{App: &fakeService{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenAndServeBadAddr(t *testing.T) {
	s := New(Config{})
	if err := s.ListenAndServe(context.Background(), "256.0.0.1:bad"); err == nil {
		t.Fatal("expected listen error")
	}
}
