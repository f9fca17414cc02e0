package tracking

import (
	"sync"
	"time"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/geo"
)

// Throttle bounds the sample rate: a sample passes when it is the first one,
// moved at least MinDistance meters, or arrived at least MinInterval after
// the last sample that passed. Zero values disable the respective bound.
type Throttle struct {
	MinDistance float64
	MinInterval time.Duration

	mu   sync.Mutex
	last *domain.LocationSample
}

func NewThrottle(minDistance float64, minInterval time.Duration) *Throttle {
	return &Throttle{MinDistance: minDistance, MinInterval: minInterval}
}

func (t *Throttle) Allow(s domain.LocationSample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil || (t.MinDistance <= 0 && t.MinInterval <= 0) {
		t.accept(s)
		return true
	}
	if t.MinDistance > 0 && geo.DistanceMeters(t.last.Coordinate, s.Coordinate) >= t.MinDistance {
		t.accept(s)
		return true
	}
	if t.MinInterval > 0 && s.Timestamp.Sub(t.last.Timestamp) >= t.MinInterval {
		t.accept(s)
		return true
	}
	return false
}

func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = nil
	t.mu.Unlock()
}

func (t *Throttle) accept(s domain.LocationSample) {
	t.last = &s
}
