package market

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the random source of the simulator and the history generator.
// Float64 returns a value in [0, 1).
type Rand interface {
	Float64() float64
}

// Clock lets tests pin "now".
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// LockedRand is a math/rand source safe for use from the tick goroutine and
// HTTP handlers at the same time.
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRand(seed int64) *LockedRand {
	return &LockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
