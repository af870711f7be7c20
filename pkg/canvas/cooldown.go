package canvas

import (
	"fmt"
	"time"
)

// Cooldown defaults.
const (
	DefaultBurstLimit uint8 = 50
	DefaultWindow           = 30 * time.Second
)

// Cooldown is a fixed-window burst gate. A session may write BurstLimit
// pixels back to back, then must wait out the whole Window measured from
// the write that hit the limit. It does not drain proportionally.
type Cooldown struct {
	BurstLimit uint8
	Window     time.Duration
}

// DefaultCooldown returns the deployed limits: 50 writes per 30 seconds.
func DefaultCooldown() Cooldown {
	return Cooldown{BurstLimit: DefaultBurstLimit, Window: DefaultWindow}
}

// Validate checks that the limiter can ever admit a write.
func (c Cooldown) Validate() error {
	if c.BurstLimit == 0 {
		return fmt.Errorf("burst_limit must be > 0")
	}
	if c.Window < time.Second {
		return fmt.Errorf("window must be at least 1s, got %s", c.Window)
	}
	// Admit compares whole unix seconds.
	if c.Window%time.Second != 0 {
		return fmt.Errorf("window must be a whole number of seconds, got %s", c.Window)
	}
	return nil
}

// Admit evaluates one write by session at unix second now. On success the
// session's counter and timestamp are advanced; on ErrCooldownActive the
// session is left exactly as it was.
func (c Cooldown) Admit(s *SessionRecord, now uint64) error {
	counter := s.CooldownCounter
	if counter >= c.BurstLimit {
		elapsed := uint64(0)
		if now > s.LastWriteTime {
			elapsed = now - s.LastWriteTime
		}
		if elapsed < uint64(c.Window/time.Second) {
			retry := uint64(c.Window/time.Second) - elapsed
			return fmt.Errorf("%w: %d writes used, retry in %ds", ErrCooldownActive, counter, retry)
		}
		counter = 0
	}

	counter++
	s.CooldownCounter = counter
	if counter >= c.BurstLimit {
		s.LastWriteTime = now
	}
	return nil
}
