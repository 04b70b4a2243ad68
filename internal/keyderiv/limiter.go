package keyderiv

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/enclave/internal/entity"
)

// DefaultMaxTrackedCallers is the per-caller map size at which idle callers
// are swept.
const DefaultMaxTrackedCallers = 4096

// Limiter throttles derivation requests per caller and in total, so one
// principal cannot monopolize the external service.
// The zero rpm values disable the matching limit. A nil *Limiter allows
// everything.
//
// A caller whose bucket has refilled is indistinguishable from one never
// seen, so such entries are dropped once maxCallers are tracked.
type Limiter struct {
	mu         sync.Mutex
	global     *rate.Limiter
	callers    map[string]*rate.Limiter
	perCaller  rate.Limit
	burst      int
	maxCallers int
	now        func() time.Time
}

// NewLimiter returns a token-bucket limiter. globalRPM bounds requests per
// minute across all callers; perCallerRPM bounds each caller.
func NewLimiter(globalRPM, perCallerRPM int) *Limiter {
	l := &Limiter{
		callers:    make(map[string]*rate.Limiter),
		perCaller:  rate.Inf,
		burst:      1,
		maxCallers: DefaultMaxTrackedCallers,
		now:        time.Now,
	}
	if globalRPM > 0 {
		l.global = rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), globalRPM)
	}
	if perCallerRPM > 0 {
		l.perCaller = rate.Limit(float64(perCallerRPM) / 60.0)
		l.burst = perCallerRPM
	}
	return l
}

// Allow consumes one token for caller or fails with CAPACITY_EXCEEDED.
func (l *Limiter) Allow(caller string) error {
	if l == nil {
		return nil
	}
	now := l.now()
	if l.global != nil && !l.global.AllowN(now, 1) {
		return entity.CapacityExceeded("key derivation rate limit reached")
	}
	if l.perCaller == rate.Inf {
		return nil
	}

	l.mu.Lock()
	lim, ok := l.callers[caller]
	if !ok {
		if len(l.callers) >= l.maxCallers {
			l.sweep(now)
		}
		lim = rate.NewLimiter(l.perCaller, l.burst)
		l.callers[caller] = lim
	}
	l.mu.Unlock()

	if !lim.AllowN(now, 1) {
		return entity.CapacityExceeded("key derivation rate limit reached for caller")
	}
	return nil
}

// tracked returns the number of callers with a per-caller bucket.
func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// sweep drops callers whose bucket is full at now. l.mu must be held.
func (l *Limiter) sweep(now time.Time) {
	full := float64(l.burst)
	for caller, lim := range l.callers {
		if lim.TokensAt(now) >= full {
			delete(l.callers, caller)
		}
	}
}
