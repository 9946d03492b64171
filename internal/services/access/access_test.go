package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetAccess(ctx context.Context, userUID string) (*models.Access, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Access), args.Error(1)
}
func (m *RepoMock) UpsertTrial(ctx context.Context, userUID string, startedAt, endsAt time.Time) error {
	return m.Called(ctx, userUID, startedAt, endsAt).Error(0)
}
func (m *RepoMock) ActivateAccess(ctx context.Context, userUID string, endsAt time.Time, invoiceID string) error {
	return m.Called(ctx, userUID, endsAt, invoiceID).Error(0)
}
func (m *RepoMock) UpdateAccessStatus(ctx context.Context, userUID, status string) error {
	return m.Called(ctx, userUID, status).Error(0)
}
func (m *RepoMock) ListExpiredTrials(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *RepoMock) ListExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *RepoMock) ListExpiringTrials(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.NotificationJob, error) {
	args := m.Called(ctx, now, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.NotificationJob), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestStartTrial(t *testing.T) {
	now := fixedNow()
	trialEnds := now.Add(TrialDuration)

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantEnds   time.Time
		wantErr    error
	}{
		{
			name: "first trial for new user",
			setupMocks: func(r *RepoMock) {
				r.On("GetAccess", mock.Anything, "uid-1").Return(nil, repository.ErrNotFound).Once()
				r.On("UpsertTrial", mock.Anything, "uid-1", now, trialEnds).Return(nil).Once()
			},
			wantEnds: trialEnds,
		},
		{
			name: "trial after expired is allowed again",
			setupMocks: func(r *RepoMock) {
				r.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
					UserUID: "uid-1",
					Status:  models.AccessStatusExpired,
				}, nil).Once()
				r.On("UpsertTrial", mock.Anything, "uid-1", now, trialEnds).Return(nil).Once()
			},
			wantEnds: trialEnds,
		},
		{
			name: "rejected while trial is running",
			setupMocks: func(r *RepoMock) {
				r.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
					UserUID:     "uid-1",
					Status:      models.AccessStatusTrial,
					TrialEndsAt: ptrTime(now.Add(time.Hour)),
				}, nil).Once()
			},
			wantErr: &AlreadyTrialError{TrialEndsAt: now.Add(time.Hour)},
		},
		{
			name: "rejected while subscription is active",
			setupMocks: func(r *RepoMock) {
				r.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
					UserUID: "uid-1",
					Status:  models.AccessStatusActive,
				}, nil).Once()
			},
			wantErr: ErrAlreadyActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := New(repo, nil, newNoopLogger(), fixedNow)

			got, err := svc.StartTrial(context.Background(), "uid-1")
			if tt.wantErr != nil {
				require.Error(t, err)
				var alreadyTrial *AlreadyTrialError
				if errors.As(tt.wantErr, &alreadyTrial) {
					var gotTrial *AlreadyTrialError
					require.ErrorAs(t, err, &gotTrial)
					assert.Equal(t, alreadyTrial.TrialEndsAt, gotTrial.TrialEndsAt)
				} else {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantEnds, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestActivateSubscription(t *testing.T) {
	now := fixedNow()
	endsAt := now.Add(SubscriptionDuration)

	t.Run("activates from trial", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
			UserUID:     "uid-1",
			Status:      models.AccessStatusTrial,
			TrialEndsAt: ptrTime(now.Add(time.Hour)),
		}, nil).Once()
		repo.On("ActivateAccess", mock.Anything, "uid-1", endsAt, "inv-1").Return(nil).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		err := svc.ActivateSubscription(context.Background(), "uid-1", "inv-1")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("replayed invoice does not extend twice", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
			UserUID:            "uid-1",
			Status:             models.AccessStatusActive,
			SubscriptionEndsAt: ptrTime(endsAt),
			LastInvoiceID:      "inv-1",
		}, nil).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		err := svc.ActivateSubscription(context.Background(), "uid-1", "inv-1")
		require.NoError(t, err)
		repo.AssertNotCalled(t, "ActivateAccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("new invoice extends active subscription", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
			UserUID:            "uid-1",
			Status:             models.AccessStatusActive,
			SubscriptionEndsAt: ptrTime(now.Add(time.Hour)),
			LastInvoiceID:      "inv-1",
		}, nil).Once()
		repo.On("ActivateAccess", mock.Anything, "uid-1", endsAt, "inv-2").Return(nil).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		err := svc.ActivateSubscription(context.Background(), "uid-1", "inv-2")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestCancelSubscription(t *testing.T) {
	now := fixedNow()
	endsAt := now.Add(10 * 24 * time.Hour)

	t.Run("cancel keeps paid period", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
			UserUID:            "uid-1",
			Status:             models.AccessStatusActive,
			SubscriptionEndsAt: ptrTime(endsAt),
		}, nil).Once()
		repo.On("UpdateAccessStatus", mock.Anything, "uid-1", models.AccessStatusCanceled).Return(nil).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		got, err := svc.CancelSubscription(context.Background(), "uid-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, endsAt, *got)
		repo.AssertExpectations(t)
	})

	t.Run("double cancel is rejected", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(&models.Access{
			UserUID: "uid-1",
			Status:  models.AccessStatusCanceled,
		}, nil).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		_, err := svc.CancelSubscription(context.Background(), "uid-1")
		assert.ErrorIs(t, err, ErrAlreadyCanceled)
	})

	t.Run("no access record", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetAccess", mock.Anything, "uid-1").Return(nil, repository.ErrNotFound).Once()

		svc := New(repo, nil, newNoopLogger(), fixedNow)
		_, err := svc.CancelSubscription(context.Background(), "uid-1")
		assert.ErrorIs(t, err, ErrAccessNotFound)
	})
}

func TestCheckAccess(t *testing.T) {
	now := fixedNow()

	tests := []struct {
		name          string
		record        *models.Access
		recordErr     error
		wantHasAccess bool
		wantStatus    string
	}{
		{
			name:          "no record means no access",
			recordErr:     repository.ErrNotFound,
			wantHasAccess: false,
			wantStatus:    models.AccessStatusNone,
		},
		{
			name: "running trial grants access",
			record: &models.Access{
				UserUID:     "uid-1",
				Status:      models.AccessStatusTrial,
				TrialEndsAt: ptrTime(now.Add(time.Hour)),
			},
			wantHasAccess: true,
			wantStatus:    models.AccessStatusTrial,
		},
		{
			name: "trial past its end reads as expired without writes",
			record: &models.Access{
				UserUID:     "uid-1",
				Status:      models.AccessStatusTrial,
				TrialEndsAt: ptrTime(now.Add(-time.Minute)),
			},
			wantHasAccess: false,
			wantStatus:    models.AccessStatusExpired,
		},
		{
			name: "active subscription grants access",
			record: &models.Access{
				UserUID:            "uid-1",
				Status:             models.AccessStatusActive,
				SubscriptionEndsAt: ptrTime(now.Add(24 * time.Hour)),
			},
			wantHasAccess: true,
			wantStatus:    models.AccessStatusActive,
		},
		{
			name: "canceled subscription keeps access until period end",
			record: &models.Access{
				UserUID:            "uid-1",
				Status:             models.AccessStatusCanceled,
				SubscriptionEndsAt: ptrTime(now.Add(24 * time.Hour)),
			},
			wantHasAccess: true,
			wantStatus:    models.AccessStatusCanceled,
		},
		{
			name: "canceled subscription past period end",
			record: &models.Access{
				UserUID:            "uid-1",
				Status:             models.AccessStatusCanceled,
				SubscriptionEndsAt: ptrTime(now.Add(-time.Minute)),
			},
			wantHasAccess: false,
			wantStatus:    models.AccessStatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			if tt.recordErr != nil {
				repo.On("GetAccess", mock.Anything, "uid-1").Return(nil, tt.recordErr).Once()
			} else {
				repo.On("GetAccess", mock.Anything, "uid-1").Return(tt.record, nil).Once()
			}

			svc := New(repo, nil, newNoopLogger(), fixedNow)
			info, err := svc.CheckAccess(context.Background(), "uid-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantHasAccess, info.HasAccess)
			assert.Equal(t, tt.wantStatus, info.Status)
			// Путь чтения чистый: никаких записей в хранилище.
			repo.AssertNotCalled(t, "UpdateAccessStatus", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCheckAccess_CacheHit(t *testing.T) {
	now := fixedNow()
	cached := Info{HasAccess: true, Status: models.AccessStatusTrial, ExpiresAt: ptrTime(now.Add(time.Hour))}

	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	cacheMock.On("Get", "access:uid-1", mock.Anything).Run(func(args mock.Arguments) {
		ptr := args.Get(1).(*Info)
		*ptr = cached
	}).Return(true, nil).Once()

	svc := New(repo, cacheMock, newNoopLogger(), fixedNow)
	info, err := svc.CheckAccess(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, cached, *info)
	repo.AssertNotCalled(t, "GetAccess", mock.Anything, mock.Anything)
}

func TestCheckAccess_CachedSnapshotPastExpiry(t *testing.T) {
	now := fixedNow()
	// Снимок закеширован за секунды до конца пробного периода: доступ
	// истёк, но TTL кеша ещё не вышел.
	cached := Info{HasAccess: true, Status: models.AccessStatusTrial, ExpiresAt: ptrTime(now.Add(-10 * time.Second))}

	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	cacheMock.On("Get", "access:uid-1", mock.Anything).Run(func(args mock.Arguments) {
		ptr := args.Get(1).(*Info)
		*ptr = cached
	}).Return(true, nil).Once()

	svc := New(repo, cacheMock, newNoopLogger(), fixedNow)
	info, err := svc.CheckAccess(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.False(t, info.HasAccess)
	assert.Equal(t, models.AccessStatusExpired, info.Status)
	assert.Nil(t, info.ExpiresAt)
}

func TestStartTrial_InvalidatesCache(t *testing.T) {
	now := fixedNow()
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	repo.On("GetAccess", mock.Anything, "uid-1").Return(nil, repository.ErrNotFound).Once()
	repo.On("UpsertTrial", mock.Anything, "uid-1", now, now.Add(TrialDuration)).Return(nil).Once()
	cacheMock.On("Invalidate", "access:uid-1").Return(nil).Once()

	svc := New(repo, cacheMock, newNoopLogger(), fixedNow)
	_, err := svc.StartTrial(context.Background(), "uid-1")
	require.NoError(t, err)
	cacheMock.AssertExpectations(t)
}

func TestExpireTrials(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	repo.On("ListExpiredTrials", mock.Anything, fixedNow()).Return([]string{"uid-1", "uid-2"}, nil).Once()
	cacheMock.On("Invalidate", "access:uid-1").Return(nil).Once()
	cacheMock.On("Invalidate", "access:uid-2").Return(nil).Once()

	svc := New(repo, cacheMock, newNoopLogger(), fixedNow)
	uids, err := svc.ExpireTrials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"uid-1", "uid-2"}, uids)
	cacheMock.AssertExpectations(t)
}
