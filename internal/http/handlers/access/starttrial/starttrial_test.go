package starttrial

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/services/access"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) StartTrial(ctx context.Context, userUID string) (time.Time, error) {
	args := m.Called(ctx, userUID)
	return args.Get(0).(time.Time), args.Error(1)
}

type EventsMock struct{ mock.Mock }

func (m *EventsMock) Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any) {
	m.Called(ctx, userUID, eventType, payload)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func doRequest(t *testing.T, h *Handler, userUID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/start-trial", nil)
	if userUID != "" {
		ctx := context.WithValue(req.Context(), middlewarectx.UserUID, userUID)
		req = req.WithContext(ctx)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStartTrialHandler(t *testing.T) {
	trialEnds := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

	t.Run("trial granted", func(t *testing.T) {
		svc := new(ServiceMock)
		events := new(EventsMock)
		svc.On("StartTrial", mock.Anything, "uid-1").Return(trialEnds, nil).Once()
		events.On("Log", mock.Anything, "uid-1", models.EventTrialStarted, mock.Anything).Once()

		rr := doRequest(t, New(newNoopLogger(), svc, events), "uid-1")

		assert.Equal(t, http.StatusOK, rr.Code)
		var got Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.True(t, got.Success)
		require.NotNil(t, got.TrialEndsAt)
		assert.True(t, trialEnds.Equal(*got.TrialEndsAt))
		events.AssertExpectations(t)
	})

	t.Run("trial already running", func(t *testing.T) {
		svc := new(ServiceMock)
		events := new(EventsMock)
		svc.On("StartTrial", mock.Anything, "uid-1").
			Return(time.Time{}, &access.AlreadyTrialError{TrialEndsAt: trialEnds}).Once()

		rr := doRequest(t, New(newNoopLogger(), svc, events), "uid-1")

		assert.Equal(t, http.StatusConflict, rr.Code)
		var got Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.False(t, got.Success)
		require.NotNil(t, got.TrialEndsAt)
		events.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("subscription already active", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("StartTrial", mock.Anything, "uid-1").Return(time.Time{}, access.ErrAlreadyActive).Once()

		rr := doRequest(t, New(newNoopLogger(), svc, new(EventsMock)), "uid-1")

		assert.Equal(t, http.StatusConflict, rr.Code)
		var got Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.False(t, got.Success)
		assert.Nil(t, got.TrialEndsAt)
	})

	t.Run("no user in context", func(t *testing.T) {
		svc := new(ServiceMock)
		rr := doRequest(t, New(newNoopLogger(), svc, new(EventsMock)), "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		svc.AssertNotCalled(t, "StartTrial", mock.Anything, mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("StartTrial", mock.Anything, "uid-1").Return(time.Time{}, assert.AnError).Once()

		rr := doRequest(t, New(newNoopLogger(), svc, new(EventsMock)), "uid-1")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
