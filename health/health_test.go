package health

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"tgdispatch/queue"
)

type stubStats struct {
	stats queue.Stats
	reset int
}

func (s *stubStats) Stats() queue.Stats { return s.stats }

func (s *stubStats) ResetStats() {
	s.reset++
	s.stats.Total, s.stats.Sent, s.stats.Failed, s.stats.Retried = 0, 0, 0, 0
}

func TestStartHealthServer(t *testing.T) {
	src := &stubStats{stats: queue.Stats{Total: 4, Sent: 3, Failed: 1, QueueLength: 2, Processing: true}}
	server, listener, err := StartHealthServer("127.0.0.1:0", src)
	if err != nil {
		t.Fatalf("StartHealthServer returned error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = listener.Close()
	}()

	baseURL := "http://" + listener.Addr().String()

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("health request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}

	resp, err = http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request error: %v", err)
	}
	var metrics map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatalf("decoding metrics failed: %v", err)
	}
	resp.Body.Close()
	if len(metrics) == 0 {
		t.Fatalf("expected metrics payload")
	}

	resp, err = http.Get(baseURL + "/stats")
	if err != nil {
		t.Fatalf("stats request error: %v", err)
	}
	var stats queue.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats failed: %v", err)
	}
	resp.Body.Close()
	if stats.Total != 4 || stats.QueueLength != 2 || !stats.Processing {
		t.Fatalf("unexpected stats %+v", stats)
	}

	resp, err = http.Post(baseURL+"/stats/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("reset request error: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding reset stats failed: %v", err)
	}
	resp.Body.Close()
	if src.reset != 1 {
		t.Fatalf("expected one reset, got %d", src.reset)
	}
	if stats.Total != 0 || stats.QueueLength != 2 {
		t.Fatalf("expected counters cleared and queue untouched, got %+v", stats)
	}
}

func TestNewMuxWithoutStats(t *testing.T) {
	server, listener, err := Start("127.0.0.1:0", NewMux(nil), nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer server.Close()

	resp, err := http.Get("http://" + listener.Addr().String() + "/stats")
	if err != nil {
		t.Fatalf("stats request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a stats source, got %d", resp.StatusCode)
	}
}
