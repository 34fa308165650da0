// Package main runs a demo WebSocket client that watches a plan being solved.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	runID := uuid.NewString()

	// subscribe first so no phase event is missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + runID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()
	log.Printf("Run ID: %s", runID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Println("read:", err)
				}
				return
			}
			b, _ := json.Marshal(msg.Data)
			log.Printf("%s %s", msg.Type, b)
		}
	}()

	city := os.Getenv("CITY")
	if city == "" {
		city = "Delhi"
	}
	body, _ := json.Marshal(map[string]any{
		"runId":               runID,
		"city":                city,
		"pointCount":          60,
		"vehicleCount":        4,
		"vehicleCapacityTons": 40,
		"zoneCount":           2,
		"algorithm":           "alns",
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var res struct {
		Status          string  `json:"status"`
		TotalDistanceKm float64 `json:"totalDistanceKm"`
		Title           string  `json:"title"`
		Detail          string  `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&res)
	if resp.StatusCode != http.StatusOK {
		log.Printf("optimize: %d %s: %s", resp.StatusCode, res.Title, res.Detail)
	} else {
		log.Printf("optimize: %s, %.2f km", res.Status, res.TotalDistanceKm)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("timeout waiting for run.completed")
	}
}
