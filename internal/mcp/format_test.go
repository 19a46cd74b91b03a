package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gateway-fm/activitybot/pkg/types"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{float64(1234567), "1,234,567"},
		{int64(-42), "-42"},
		{1.5, "1.5"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShortAddr(t *testing.T) {
	if got := shortAddr("0x1234567890abcdef1234567890abcdef12345678"); got != "0x1234...5678" {
		t.Errorf("shortAddr = %q", got)
	}
	if got := shortAddr("0xabc"); got != "0xabc" {
		t.Errorf("short input changed: %q", got)
	}
}

func TestFormatStatus(t *testing.T) {
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, _ := json.Marshal(types.StatusSnapshot{
		State:        types.StateWaitingForNextCycle,
		StatusText:   types.StateWaitingForNextCycle.Label(),
		AccountCount: 3,
		BridgeReps:   2,
		StakeReps:    1,
		NextCycleAt:  &next,
		ConfirmLatency: &types.LatencyStats{
			Count: 4, Min: 900, P50: 1500, P95: 3000, Max: 3200,
		},
	})

	out := formatStatus(raw)
	for _, want := range []string{"Waiting for next cycle", "Bridge Repetitions:", "Confirmation Latency", "1500.0ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatHistory(t *testing.T) {
	raw, _ := json.Marshal(types.HistoryResponse{
		Runs: []types.CycleRun{{
			ID:            "c1",
			Result:        types.CycleCompleted,
			Accounts:      2,
			BridgeOK:      3,
			BridgeSkipped: 1,
			StakeOK:       2,
		}},
		Total: 1,
	})

	out := formatHistory(raw)
	for _, want := range []string{"### c1", "completed", "3 ok, 1 skipped, 0 failed (75.0%)", "2 ok, 0 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	empty, _ := json.Marshal(types.HistoryResponse{Runs: []types.CycleRun{}})
	if out := formatHistory(empty); !strings.Contains(out, "No cycles found.") {
		t.Errorf("empty history output:\n%s", out)
	}
}

func TestFormatFaucet(t *testing.T) {
	raw := json.RawMessage(`{"status":"done","results":[
		{"address":"0x1111111111111111111111111111111111111111","txHash":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{"address":"0x2222222222222222222222222222222222222222","error":"HTTP 429"}]}`)

	out := formatFaucet(raw)
	for _, want := range []string{"1 / 2", "tx 0xaaaa...aaaa", "failed: HTTP 429"} {
		if !strings.Contains(out, want) {
			t.Errorf("faucet output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatOperations(t *testing.T) {
	raw := json.RawMessage(`{"operations":[{"kind":"bridge","repetition":1,"account":"0x1111111111111111111111111111111111111111",
		"amount":"0.0021","target":"Sepolia","status":"skipped","errorReason":"insufficient token balance"}],"total":1}`)

	out := formatOperations(raw)
	for _, want := range []string{"bridge #1", "0.0021 HLS -> Sepolia", "skipped", "(insufficient token balance)"} {
		if !strings.Contains(out, want) {
			t.Errorf("operations output missing %q:\n%s", want, out)
		}
	}
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid config: min HLS for bridge cannot be greater than max"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	_, err := c.Put(context.Background(), "/v1/config", map[string]any{"minHlsBridge": 5})
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "HTTP 400: invalid config: min HLS for bridge cannot be greater than max"; err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"state":"idle"}`))
	}))
	defer srv.Close()

	raw, err := NewClient(srv.URL).Get(context.Background(), "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"state":"idle"}` {
		t.Errorf("body = %s", raw)
	}
}
