package metrics

import (
	"sync"
	"sync/atomic"
)

// AtomicSubSaturating atomically subtracts delta from *addr, saturating at 0.
func AtomicSubSaturating(addr *int64, delta int64) int64 {
	for {
		current := atomic.LoadInt64(addr)
		newVal := current - delta
		if newVal < 0 {
			newVal = 0
		}
		if atomic.CompareAndSwapInt64(addr, current, newVal) {
			return newVal
		}
	}
}

// InFlight counts operations suspended at a wait point (sleep, RPC round trip,
// confirmation wait). A graceful stop completes only once it reads zero.
type InFlight struct {
	value    int64
	onChange func(int64)
}

// NewInFlight creates a counter. onChange, if set, observes every new value.
func NewInFlight(onChange func(int64)) *InFlight {
	return &InFlight{onChange: onChange}
}

// Enter increments the counter and returns the matching release func.
// The release func is idempotent so it can be deferred on every exit path.
func (c *InFlight) Enter() func() {
	c.notify(atomic.AddInt64(&c.value, 1))
	var once sync.Once
	return func() {
		once.Do(func() {
			c.notify(AtomicSubSaturating(&c.value, 1))
		})
	}
}

// Track runs fn inside an Enter/release pair.
func (c *InFlight) Track(fn func() error) error {
	release := c.Enter()
	defer release()
	return fn()
}

// Load returns the current value.
func (c *InFlight) Load() int64 {
	return atomic.LoadInt64(&c.value)
}

func (c *InFlight) notify(v int64) {
	if c.onChange != nil {
		c.onChange(v)
	}
}
