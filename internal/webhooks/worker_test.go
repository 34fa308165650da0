package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wasteroute/internal/model"
	"wasteroute/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3, nil)
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", EventPlanSolved, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotSig == "" || gotType != EventPlanSolved {
		t.Fatalf("missing signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify")
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2, nil)
	w.HTTP = srv.Client()
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "", EventPlanInfeasible, srv.URL, "", []byte(`{}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected one failed mark, got %+v", rs.marks)
	}
	if len(rs.fails) != 0 {
		t.Fatalf("should not dead-letter on first attempt")
	}

	// make the retry due now
	if err := rs.Memory.RetryWebhookDelivery(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
	failed, _, err := rs.ListWebhookDeliveries(context.Background(), store.DeliveryFailed, "", 0)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected one failed delivery, got %+v (%v)", failed, err)
	}
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://a", Events: []string{EventPlanSolved}})
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://b", Events: []string{EventPlanTimedOut}})
	p := NewPublisher(m)

	n, err := p.Emit(ctx, EventPlanSolved, map[string]any{"runId": "r1"})
	if err != nil || n != 1 {
		t.Fatalf("emit = %d, %v", n, err)
	}
	n, err = p.Emit(ctx, EventPlanInfeasible, nil)
	if err != nil || n != 0 {
		t.Fatalf("no subscribers expected, got %d, %v", n, err)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" {
		t.Fatalf("unexpected deliveries %+v", due)
	}
}

func TestEventForStatus(t *testing.T) {
	if EventForStatus(model.StatusTimedOut) != EventPlanTimedOut || EventForStatus(model.StatusSolved) != EventPlanSolved || EventForStatus(model.StatusInfeasible) != EventPlanInfeasible {
		t.Fatal("status mapping")
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second || nextBackoff(50) != 1024*time.Second {
		t.Fatal("backoff schedule")
	}
}
