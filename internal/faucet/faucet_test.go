package faucet

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/pkg/types"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	addrC = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *fakeRecorder) RecordFaucetClaim(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.ok++
	} else {
		r.failed++
	}
}

type faucetServer struct {
	mu       sync.Mutex
	received []string
	times    []time.Time
	respond  func(w http.ResponseWriter, address string)
}

func (s *faucetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.received = append(s.received, req.Address)
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	s.respond(w, req.Address)
}

func newTestClient(t *testing.T, srv *faucetServer, interval time.Duration) (*Client, *fakeRecorder, *eventlog.Journal) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	rec := &fakeRecorder{}
	journal := eventlog.NewJournal(0)
	c := New(Config{
		URL:      ts.URL,
		Interval: interval,
		Metrics:  rec,
		Logger:   eventlog.NewLogger(slog.NewTextHandler(io.Discard, nil), journal),
	})
	return c, rec, journal
}

func okResponse(w http.ResponseWriter, address string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"txHash": "0xabc" + strings.ToLower(address[2:6])})
}

func TestClaim_Success(t *testing.T) {
	srv := &faucetServer{respond: okResponse}
	c, _, _ := newTestClient(t, srv, time.Millisecond)

	hash, err := c.Claim(context.Background(), addrA)
	require.NoError(t, err)
	require.Equal(t, "0xabc1111", hash)
	require.Equal(t, []string{addrA.Hex()}, srv.received)
}

func TestClaim_Failures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter, address string)
		wantErr string
	}{
		{
			name: "no tx hash with message",
			respond: func(w http.ResponseWriter, _ string) {
				_, _ = w.Write([]byte(`{"message":"already claimed today"}`))
			},
			wantErr: "already claimed today",
		},
		{
			name: "empty object",
			respond: func(w http.ResponseWriter, _ string) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantErr: ErrNoTxHash.Error(),
		},
		{
			name: "http error with message",
			respond: func(w http.ResponseWriter, _ string) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"slow down"}`))
			},
			wantErr: "HTTP 429: slow down",
		},
		{
			name: "http error without body",
			respond: func(w http.ResponseWriter, _ string) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: "HTTP 502",
		},
		{
			name: "not json",
			respond: func(w http.ResponseWriter, _ string) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, &faucetServer{respond: tt.respond}, time.Millisecond)
			_, err := c.Claim(context.Background(), addrA)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClaim_NoTxHashIsSentinel(t *testing.T) {
	srv := &faucetServer{respond: func(w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}}
	c, _, _ := newTestClient(t, srv, time.Millisecond)

	_, err := c.Claim(context.Background(), addrA)
	require.ErrorIs(t, err, ErrNoTxHash)
}

func TestClaimAll_IsolatesFailures(t *testing.T) {
	srv := &faucetServer{respond: func(w http.ResponseWriter, address string) {
		if address == addrB.Hex() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		okResponse(w, address)
	}}
	c, rec, journal := newTestClient(t, srv, time.Millisecond)

	results, err := c.ClaimAll(context.Background(), []common.Address{addrA, addrB, addrC})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, types.FaucetResult{Address: addrA.Hex(), TxHash: "0xabc1111"}, results[0])
	require.Equal(t, addrB.Hex(), results[1].Address)
	require.Contains(t, results[1].Error, "HTTP 500")
	require.Empty(t, results[1].TxHash)
	require.Equal(t, "0xabc3333", results[2].TxHash)

	require.Equal(t, 2, rec.ok)
	require.Equal(t, 1, rec.failed)

	var severities []types.Severity
	for _, ev := range journal.Recent(0) {
		severities = append(severities, ev.Severity)
	}
	require.Equal(t, []types.Severity{
		types.SeverityInfo,
		types.SeveritySuccess,
		types.SeverityError,
		types.SeveritySuccess,
		types.SeveritySuccess,
	}, severities)
}

func TestClaimAll_PacesClaims(t *testing.T) {
	interval := 30 * time.Millisecond
	srv := &faucetServer{respond: okResponse}
	c, _, _ := newTestClient(t, srv, interval)

	_, err := c.ClaimAll(context.Background(), []common.Address{addrA, addrB, addrC})
	require.NoError(t, err)

	require.Len(t, srv.times, 3)
	for i := 1; i < len(srv.times); i++ {
		gap := srv.times[i].Sub(srv.times[i-1])
		require.GreaterOrEqual(t, gap, interval*8/10, "claims %d and %d too close", i-1, i)
	}
}

func TestClaimAll_Cancelled(t *testing.T) {
	srv := &faucetServer{respond: okResponse}
	c, _, _ := newTestClient(t, srv, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, err := c.ClaimAll(ctx, []common.Address{addrA, addrB})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, results, 1)
	require.Equal(t, "0xabc1111", results[0].TxHash)
}
