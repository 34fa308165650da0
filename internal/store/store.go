package store

import (
	"context"
	"errors"
	"time"

	"wasteroute/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store persists finished plans, webhook subscriptions and the webhook delivery queue.
type Store interface {
	Ping(ctx context.Context) error

	// Runs
	SaveRun(ctx context.Context, res *model.PlanResult) error
	GetRun(ctx context.Context, runID string) (*model.PlanResult, error)
	ListRuns(ctx context.Context, city, cursor string, limit int) ([]model.RunSummary, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error
}

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}
