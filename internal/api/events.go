package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wasteroute/internal/planner"
	"wasteroute/internal/store"
)

const heartbeatInterval = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// publishPhase forwards planner phase transitions to run listeners.
func (s *Server) publishPhase(_ context.Context, ev planner.PhaseEvent) {
	if ev.RunID == "" {
		return
	}
	s.Broker.Publish(ev.RunID, RunEvent{Type: EventRunPhase, Data: map[string]any{
		"runId":  ev.RunID,
		"zone":   ev.Zone,
		"from":   ev.From,
		"to":     ev.To,
		"detail": ev.Detail,
		"ts":     ev.At.UTC().Format(time.RFC3339Nano),
	}})
}

// completedEvent is replayed to listeners that attach after the run was stored.
func (s *Server) completedEvent(ctx context.Context, runID string) (RunEvent, bool) {
	res, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.Log.Warn("lookup run for stream", zap.String("run_id", runID), zap.Error(err))
		}
		return RunEvent{}, false
	}
	return RunEvent{Type: EventRunCompleted, Data: map[string]any{
		"runId":           res.RunID,
		"status":          res.Status,
		"totalDistanceKm": res.TotalDistanceKm,
		"routes":          len(res.Routes),
	}}, true
}

// RunEventsHandler streams run events as server-sent events until run.completed
// or the client goes away.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	send := func(evt RunEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}

	heartbeat()
	if evt, done := s.completedEvent(r.Context(), id); done {
		send(evt)
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Type == EventRunCompleted {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// RunWSHandler streams run events over a websocket. Clients may send
// {"type":"ping"} and receive {"type":"pong"}.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	out := make(chan wsMessage, 4)
	readDone := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	go func() {
		defer close(readDone)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				select {
				case out <- wsMessage{Type: "pong"}:
				default:
				}
			}
		}
	}()

	write := func(m wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m)
	}
	closeNormal := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run completed"), time.Now().Add(time.Second))
	}

	if evt, done := s.completedEvent(r.Context(), id); done {
		_ = write(wsMessage{Type: evt.Type, Data: evt.Data})
		closeNormal()
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-readDone:
			return
		case m := <-out:
			if err := write(m); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(wsMessage{Type: evt.Type, Data: evt.Data}); err != nil {
				return
			}
			if evt.Type == EventRunCompleted {
				closeNormal()
				return
			}
		case <-ticker.C:
			if err := write(wsMessage{Type: "heartbeat", Data: map[string]any{"runId": id}}); err != nil {
				return
			}
		}
	}
}
