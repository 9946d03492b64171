package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomogator/pomogator-backend/internal/models"
)

func TestStorage_AccessLifecycle(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	uid := factory.CreateUser(t, "100500", "testuser")

	_, err := storage.GetAccess(ctx, uid)
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	trialEnds := now.Add(72 * time.Hour)
	require.NoError(t, storage.UpsertTrial(ctx, uid, now, trialEnds))

	got, err := storage.GetAccess(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusTrial, got.Status)
	require.NotNil(t, got.TrialEndsAt)
	assert.WithinDuration(t, trialEnds, *got.TrialEndsAt, time.Second)

	subEnds := now.Add(30 * 24 * time.Hour)
	require.NoError(t, storage.ActivateAccess(ctx, uid, subEnds, "inv-1"))

	got, err = storage.GetAccess(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusActive, got.Status)
	assert.Equal(t, "inv-1", got.LastInvoiceID)
	// Активация сбрасывает дату окончания триала.
	assert.Nil(t, got.TrialEndsAt)
	require.NotNil(t, got.SubscriptionEndsAt)
	assert.WithinDuration(t, subEnds, *got.SubscriptionEndsAt, time.Second)

	require.NoError(t, storage.UpdateAccessStatus(ctx, uid, models.AccessStatusCanceled))
	got, err = storage.GetAccess(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusCanceled, got.Status)

	err = storage.UpdateAccessStatus(ctx, "00000000-0000-0000-0000-000000000000", models.AccessStatusCanceled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ListExpiredTrials(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	expiredEnds := now.Add(-time.Hour)
	runningEnds := now.Add(time.Hour)

	expiredUID := factory.CreateUser(t, "1", "expired")
	factory.CreateAccess(t, expiredUID, models.AccessStatusTrial, &expiredEnds, nil)

	runningUID := factory.CreateUser(t, "2", "running")
	factory.CreateAccess(t, runningUID, models.AccessStatusTrial, &runningEnds, nil)

	uids, err := storage.ListExpiredTrials(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{expiredUID}, uids)

	// Статус переведён в EXPIRED, повторный запуск ничего не находит.
	got, err := storage.GetAccess(ctx, expiredUID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusExpired, got.Status)

	uids, err = storage.ListExpiredTrials(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestStorage_ListExpiredActive(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	pastEnds := now.Add(-time.Minute)
	futureEnds := now.Add(24 * time.Hour)

	activeUID := factory.CreateUser(t, "1", "active-past")
	factory.CreateAccess(t, activeUID, models.AccessStatusActive, nil, &pastEnds)

	canceledUID := factory.CreateUser(t, "2", "canceled-past")
	factory.CreateAccess(t, canceledUID, models.AccessStatusCanceled, nil, &pastEnds)

	keepUID := factory.CreateUser(t, "3", "active-future")
	factory.CreateAccess(t, keepUID, models.AccessStatusActive, nil, &futureEnds)

	uids, err := storage.ListExpiredActive(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{activeUID, canceledUID}, uids)

	got, err := storage.GetAccess(ctx, keepUID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusActive, got.Status)
}

func TestStorage_ListExpiringTrials(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	soonEnds := now.Add(3 * time.Hour)
	farEnds := now.Add(48 * time.Hour)

	soonUID := factory.CreateUser(t, "100", "soon")
	factory.CreateAccess(t, soonUID, models.AccessStatusTrial, &soonEnds, nil)

	farUID := factory.CreateUser(t, "200", "far")
	factory.CreateAccess(t, farUID, models.AccessStatusTrial, &farEnds, nil)

	jobs, err := storage.ListExpiringTrials(ctx, now, 6*time.Hour)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, soonUID, jobs[0].UserUID)
	assert.Equal(t, "100", jobs[0].TgID)
	assert.NotEmpty(t, jobs[0].TrialEnds)
}

func TestStorage_Payments(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	uid := factory.CreateUser(t, "100500", "payer")

	id, err := storage.SavePayment(ctx, models.Payment{
		InvoiceID:  "inv-1",
		UserUID:    uid,
		Amount:     999,
		Currency:   "RUB",
		Status:     models.PaymentStatusPending,
		RawPayload: []byte(`{"status":"pending"}`),
	})
	require.NoError(t, err)

	got, err := storage.GetPaymentByInvoiceID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, uid, got.UserUID)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	assert.InDelta(t, 999.0, got.Amount, 0.001)

	_, err = storage.GetPaymentByInvoiceID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.UpdatePaymentStatus(ctx, id,
		models.PaymentStatusSucceeded, []byte(`{"status":"succeeded"}`)))
	got, err = storage.GetPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, got.Status)

	list, err := storage.ListUserPayments(ctx, uid, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStorage_ListStalePendingPayments(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()
	uid := factory.CreateUser(t, "100500", "payer")

	staleID := factory.CreatePayment(t, "inv-stale", uid, models.PaymentStatusPending, 999, now.Add(-3*time.Hour))
	factory.CreatePayment(t, "inv-fresh", uid, models.PaymentStatusPending, 999, now.Add(-10*time.Minute))
	factory.CreatePayment(t, "inv-done", uid, models.PaymentStatusSucceeded, 999, now.Add(-3*time.Hour))

	pending, err := storage.ListStalePendingPayments(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, staleID, pending[0].PaymentID)
	assert.Equal(t, "inv-stale", pending[0].InvoiceID)
	assert.Equal(t, "100500", pending[0].TgID)
}

func TestStorage_Users(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	uid, err := storage.CreateUser(ctx, models.User{
		TgID:      "42",
		Username:  "durov",
		FirstName: "Pavel",
	})
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	got, err := storage.GetUserByTgID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, uid, got.UID)
	assert.Equal(t, "durov", got.Username)

	_, err = storage.GetUserByTgID(ctx, "404")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.UpdateUserName(ctx, uid, "new_name", "New"))
	got, err = storage.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "new_name", got.Username)
	assert.Equal(t, "New", got.FirstName)

	tgID, err := storage.GetTgID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "42", tgID)
}

func TestStorage_EventLog(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	uid := factory.CreateUser(t, "100500", "logger")

	require.NoError(t, storage.AppendEvent(ctx, uid, models.EventTrialStarted,
		map[string]any{"trialEndsAt": "2025-06-04T12:00:00Z"}))
	require.NoError(t, storage.AppendEvent(ctx, uid, models.EventAppOpened, nil))

	events, err := storage.ListUserEvents(ctx, uid, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	types := []models.EventType{events[0].Type, events[1].Type}
	assert.Contains(t, types, models.EventTrialStarted)
	assert.Contains(t, types, models.EventAppOpened)
}
