package batch

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// CooldownPolicy decides how long to pause after a chunk.
type CooldownPolicy interface {
	// Pause is called with the number of chunks processed so far in the run.
	Pause(processed int) time.Duration
}

// Tier pauses for Pause after every Every processed chunks.
type Tier struct {
	Every int           `mapstructure:"every"`
	Pause time.Duration `mapstructure:"pause"`
}

// EveryN applies each tier independently; when several tiers fire on the same
// chunk their pauses add up.
type EveryN struct {
	tiers []Tier
}

// NewEveryN validates tiers and returns the policy.
func NewEveryN(tiers ...Tier) (*EveryN, error) {
	out := make([]Tier, 0, len(tiers))
	for i, t := range tiers {
		if t.Every <= 0 {
			return nil, fmt.Errorf("cooldown tier %d: every must be positive", i)
		}
		if t.Pause < 0 {
			return nil, fmt.Errorf("cooldown tier %d: pause must not be negative", i)
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Every < out[b].Every })
	return &EveryN{tiers: out}, nil
}

// DefaultCooldown pauses 15 minutes after every 50 chunks.
func DefaultCooldown() *EveryN {
	return &EveryN{tiers: []Tier{{Every: 50, Pause: 15 * time.Minute}}}
}

// Pause implements CooldownPolicy.
func (p *EveryN) Pause(processed int) time.Duration {
	if p == nil || processed <= 0 {
		return 0
	}
	var d time.Duration
	for _, t := range p.tiers {
		if processed%t.Every == 0 {
			d += t.Pause
		}
	}
	return d
}

// NoCooldown never pauses.
type NoCooldown struct{}

// Pause implements CooldownPolicy.
func (NoCooldown) Pause(int) time.Duration { return 0 }

// Sleeper blocks for a duration or until ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
