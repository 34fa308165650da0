package api

import (
	"sync"
)

// Event types streamed to run listeners.
const (
	EventRunPhase     = "run.phase"
	EventRunCompleted = "run.completed"
)

type RunEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans run events out to SSE and websocket listeners, keyed by run id.
type EventBroker interface {
	Subscribe(runID string) chan RunEvent
	Unsubscribe(runID string, ch chan RunEvent)
	Publish(runID string, evt RunEvent)
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan RunEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan RunEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan RunEvent {
	ch := make(chan RunEvent, 32)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan RunEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

// Publish never blocks. A slow listener drops phase events, but run.completed
// always lands, evicting the oldest buffered event if it must.
func (b *Broker) Publish(runID string, evt RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		deliver(ch, evt)
	}
}

// deliver must be called with the broker lock held so ch cannot be closed underneath it.
func deliver(ch chan RunEvent, evt RunEvent) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		if evt.Type != EventRunCompleted {
			return
		}
		select {
		case <-ch:
		default:
		}
	}
}
