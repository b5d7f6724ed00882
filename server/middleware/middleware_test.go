package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/grantsnap/statekit/logger"
)

func init() { gin.SetMode(gin.TestMode) }

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("a"), mark("b"), mark("c"))(ok())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderRequestID)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("generated id not propagated: request=%q response=%q", seen, rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "given")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "given" || rec.Header().Get(HeaderRequestID) != "given" {
		t.Errorf("caller id not kept: %q", seen)
	}
}

func TestCORS(t *testing.T) {
	cfg := &CORSConfig{
		AllowedOrigins: []string{"chrome-extension://abc"},
		AllowedMethods: []string{"GET", "POST"},
	}
	h := CORS(cfg)(ok())

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/auth", nil)
		req.Header.Set("Origin", "chrome-extension://abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "chrome-extension://abc" {
			t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
		}
		if rec.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
			t.Errorf("allow-methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
		}
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("foreign origin must not be allowed")
		}
	})
}

func TestBodySizeLimit(t *testing.T) {
	var readErr error
	h := BodySizeLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("declared oversize: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("streamed oversize: err = %v", readErr)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	h := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRequestLogger_StatusLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/state/x", nil))
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"status":404`) || !strings.Contains(out, `"bytes":7`) {
		t.Errorf("log = %s", out)
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health request logged: %s", buf.String())
	}
}

func TestRequestLogger_GinStream(t *testing.T) {
	r := gin.New()
	r.GET("/v1/auth/events", func(c *gin.Context) {
		c.Stream(func(w io.Writer) bool {
			c.SSEvent("auth", "hello")
			return false
		})
	})
	h := RequestLogger(logger.Nop())(r)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/events", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "event:auth") {
		t.Errorf("stream through logger = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecordingWriter_StreamingInterfaces(t *testing.T) {
	var w http.ResponseWriter = newRecordingWriter(httptest.NewRecorder())
	if _, ok := w.(http.Flusher); !ok {
		t.Error("recordingWriter must implement http.Flusher")
	}
	cn, ok := w.(http.CloseNotifier) //nolint:staticcheck // gin streams through CloseNotifier.
	if !ok {
		t.Fatal("recordingWriter must implement http.CloseNotifier")
	}
	if cn.CloseNotify() == nil {
		t.Error("CloseNotify returned a nil channel")
	}
}

func TestBearer(t *testing.T) {
	validate := func(token string) (string, error) {
		if token == "good" {
			return "u-1", nil
		}
		return "", errors.New("bad token")
	}
	r := gin.New()
	r.Use(Bearer(BearerConfig{Validate: validate, SkipPaths: []string{"/health"}}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/state/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextKeySubject)) })

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"skipped path", "/health", "", http.StatusOK, ""},
		{"missing header", "/v1/state/x", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "/v1/state/x", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", "/v1/state/x", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"good token", "/v1/state/x", "Bearer good", http.StatusOK, "u-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %s, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}
