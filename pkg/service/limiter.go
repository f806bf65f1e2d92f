package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 3 * time.Minute

// actorLimiter keeps one token bucket per actor. Buckets idle for longer
// than limiterIdleTTL are dropped on the next sweep.
type actorLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	actors    map[string]*actorBucket
	lastSweep time.Time
}

type actorBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newActorLimiter(rps float64, burst int) *actorLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &actorLimiter{
		rps:    rate.Limit(rps),
		burst:  burst,
		actors: make(map[string]*actorBucket),
	}
}

func (l *actorLimiter) allow(actor string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for id, b := range l.actors {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.actors, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.actors[actor]
	if !ok {
		b = &actorBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.actors[actor] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
