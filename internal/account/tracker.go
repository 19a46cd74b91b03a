package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress is returned for an address that is not 20 bytes of hex.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrStopped is returned when a stop was requested before a nonce was handed out.
	ErrStopped = errors.New("stopped")
)

// NonceSource reports the pending-inclusive transaction count of an address.
// *ethclient.Client satisfies it.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Tracker hands out nonces per address and keeps them strictly increasing even
// when the chain's pending count lags behind local submissions.
//
// Callers must not request nonces for the same address concurrently: the fetch
// and the update are not atomic with respect to each other.
type Tracker struct {
	mu      sync.Mutex
	last    map[common.Address]uint64
	stopped func() bool
}

// NewTracker creates a tracker. stopped is checked before any network call; nil
// means never stopped.
func NewTracker(stopped func() bool) *Tracker {
	if stopped == nil {
		stopped = func() bool { return false }
	}
	return &Tracker{
		last:    make(map[common.Address]uint64),
		stopped: stopped,
	}
}

// Next returns the nonce to use for the next transaction from address.
func (t *Tracker) Next(ctx context.Context, src NonceSource, address string) (uint64, error) {
	if t.stopped() {
		return 0, ErrStopped
	}
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	pending, err := src.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("pending nonce for %s: %w", addr.Hex(), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := pending
	if last, seen := t.last[addr]; seen && last+1 > next {
		next = last + 1
	}
	t.last[addr] = next
	return next, nil
}

// Reset forgets every address.
func (t *Tracker) Reset() {
	t.mu.Lock()
	clear(t.last)
	t.mu.Unlock()
}

// Len returns the number of tracked addresses.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
