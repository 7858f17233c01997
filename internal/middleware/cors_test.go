package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantAllowed bool
	}{
		{"wildcard echoes origin", []string{"*"}, "http://localhost:5173", "http://localhost:5173", "", true},
		{"explicit origin gets credentials", []string{"https://clinic.example"}, "https://clinic.example", "https://clinic.example", "true", true},
		{"unknown origin", []string{"https://clinic.example"}, "https://evil.example", "", "", false},
		{"no origin header", []string{"*"}, "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			CORS(tt.allowed)(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusTeapot, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rr.Header().Get("Access-Control-Allow-Credentials"))
			if tt.wantAllowed {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/api/cases", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	CORS([]string{"*"})(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/cases", nil)
	rr := httptest.NewRecorder()
	RequestLogger(logger)(okHandler).ServeHTTP(rr, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
}
