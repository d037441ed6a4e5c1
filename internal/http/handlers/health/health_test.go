package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]Checker
		expectedStatus int
		expectedBody   string
	}{
		{"all up", map[string]Checker{"postgres": ok, "redis": ok}, http.StatusOK, `"redis":"ok"`},
		{"redis down", map[string]Checker{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, `"redis":"down"`},
		{"no checks", nil, http.StatusOK, `"status":"OK"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			New(slog.New(slog.NewTextHandler(io.Discard, nil)), tt.checks).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}
