package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wasteroute/internal/model"
	"wasteroute/internal/store"
)

// Event types delivered to subscribers.
const (
	EventPlanSolved     = "plan.solved"
	EventPlanTimedOut   = "plan.timed_out"
	EventPlanInfeasible = "plan.infeasible"
)

// EventTypes lists every event a subscription may ask for.
var EventTypes = []string{EventPlanSolved, EventPlanTimedOut, EventPlanInfeasible}

// EventForStatus maps a run status to its webhook event type.
func EventForStatus(s model.Status) string {
	switch s {
	case model.StatusTimedOut:
		return EventPlanTimedOut
	case model.StatusInfeasible:
		return EventPlanInfeasible
	default:
		return EventPlanSolved
	}
}

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	TS   string `json:"ts"`
	Data any    `json:"data"`
}

// Emit queues one delivery per subscription for eventType and returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("subscriptions for %s: %w", eventType, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(envelope{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		TS:   p.now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", eventType, err)
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			return n, fmt.Errorf("enqueue %s for %s: %w", eventType, s.ID, err)
		}
		n++
	}
	return n, nil
}
