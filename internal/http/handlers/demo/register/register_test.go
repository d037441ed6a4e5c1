package register

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) RegisterDemo(ctx context.Context, email string) (*models.DemoResponse, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DemoResponse), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "first activation",
			body: `{"email":"a@b.c"}`,
			setupMocks: func(s *MockService) {
				s.On("RegisterDemo", mock.Anything, "a@b.c").
					Return(&models.DemoResponse{Success: true, Email: "a@b.c", IsActive: true, DemoUsed: true}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"is_active":true`,
		},
		{
			name: "already used",
			body: `{"email":"a@b.c"}`,
			setupMocks: func(s *MockService) {
				s.On("RegisterDemo", mock.Anything, "a@b.c").
					Return(nil, fmt.Errorf("account.RegisterDemo: %w", models.ErrDemoAlreadyUsed)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   "demo already used",
		},
		{
			name:           "bad email",
			body:           `{"email":""}`,
			setupMocks:     func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMocks(svc)

			rr := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rr,
				httptest.NewRequest(http.MethodPost, "/api/demo/register", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
