package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSPAHandler(t *testing.T) {
	t.Parallel()

	h := SPAHandler()
	tests := []struct {
		path     string
		contains string
	}{
		{"/", "MedEndorse"},
		{"/app.js", "EventSource"},
		{"/cases/01HZX", "MedEndorse"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.contains)
		})
	}
}

func TestSPAHandlerReservedPrefixes(t *testing.T) {
	t.Parallel()

	h := SPAHandler()
	for _, path := range []string{"/api/unknown", "/ws/cases/x"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestSPAHandlerIndexNotCached(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cases/abc", nil))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
}
