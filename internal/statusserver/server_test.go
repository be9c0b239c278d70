package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestHealthzReportsOK(t *testing.T) {
	s := New("127.0.0.1:0", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("got %v, want status=ok", body)
	}
}

func TestStartTwiceRefusesDoubleBind(t *testing.T) {
	s := New("127.0.0.1:0", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background())

	if err := s.Start(); err == nil {
		t.Error("expected error on second Start call")
	}
}

func TestShutdownIsGraceful(t *testing.T) {
	s := New("127.0.0.1:0", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
