package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/model"
)

func TestMemoryRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		city := "Pune"
		if i%2 == 1 {
			city = "Delhi"
		}
		require.NoError(t, m.SaveRun(ctx, &model.PlanResult{RunID: fmt.Sprintf("r%d", i), City: city, Status: model.StatusSolved, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	got, err := m.GetRun(ctx, "r3")
	require.NoError(t, err)
	assert.Equal(t, "Delhi", got.City)
	_, err = m.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	page, next, err := m.ListRuns(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r4", page[0].RunID)
	assert.Equal(t, "r3", next)

	page, next, err = m.ListRuns(ctx, "", next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, []string{page[0].RunID, page[1].RunID})
	assert.Equal(t, "r1", next)

	page, next, err = m.ListRuns(ctx, "", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, next)

	page, _, err = m.ListRuns(ctx, "pune", "", 0)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, err := m.CreateSubscription(ctx, model.Subscription{URL: "http://a", Events: []string{"plan.solved"}})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	_, err = m.CreateSubscription(ctx, model.Subscription{URL: "http://b", Events: []string{"plan.infeasible", "plan.solved"}})
	require.NoError(t, err)

	subs, err := m.GetSubscriptionsForEvent(ctx, "plan.solved")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	subs, err = m.GetSubscriptionsForEvent(ctx, "plan.infeasible")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	page, next, err := m.ListSubscriptions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, a.ID, next)

	require.NoError(t, m.DeleteSubscription(ctx, a.ID))
	assert.ErrorIs(t, m.DeleteSubscription(ctx, a.ID), ErrNotFound)
	subs, _ = m.GetSubscriptionsForEvent(ctx, "plan.solved")
	assert.Len(t, subs, 1)
}

func TestMemoryDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	id, err := m.EnqueueWebhook(ctx, "sub", "plan.solved", "http://x", "s", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	dup, err := m.EnqueueWebhook(ctx, "sub", "plan.solved", "http://x", "s", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.Equal(t, id, dup, "same event id is deduplicated")

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	later := now.Add(time.Minute)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "503", 503, 12))
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	assert.Empty(t, due, "retry not due yet")

	now = later
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "gave up", 500, 8))
	dl := m.deadLetters()
	require.Len(t, dl, 1)
	assert.Equal(t, DeliveryFailed, dl[0].Status)

	failed, _, err := m.ListWebhookDeliveries(ctx, DeliveryFailed, "", 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)

	require.NoError(t, m.RetryWebhookDelivery(ctx, id))
	assert.Empty(t, m.deadLetters())
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 5))
	ok, _, _ := m.ListWebhookDeliveries(ctx, DeliveryDelivered, "", 0)
	require.Len(t, ok, 1)
	assert.NotNil(t, ok[0].DeliveredAt)

	assert.ErrorIs(t, m.RetryWebhookDelivery(ctx, "missing"), ErrNotFound)
}
