package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is the single choke point for all external LLM calls. It couples a
// continuously-replenished token bucket (tokens-per-minute budget) with a
// concurrency semaphore. Callers acquire a permit with an estimated token
// cost before the call and release it with the actual cost afterwards; the
// difference is reconciled against the bucket.
//
// Replenishment is continuous (balance grows by rate x elapsed, capped at
// the per-minute budget) instead of a fixed per-minute reset, so blocked
// callers wake up spread over time rather than all at once at a window
// boundary.
type Limiter struct {
	mu         sync.Mutex
	capacity   float64 // tokens, equals the per-minute budget
	rate       float64 // tokens per second
	balance    float64
	lastRefill time.Time

	slots chan struct{}

	now func() time.Time
}

// Permit represents one granted call. Release must be called exactly once.
type Permit struct {
	limiter   *Limiter
	estimated int
	released  bool
	mu        sync.Mutex
}

// New creates a limiter with the given tokens-per-minute budget and maximum
// number of concurrent in-flight calls. The bucket starts full, so a cold
// start may spend up to one minute of budget immediately.
func New(tpmLimit, maxConcurrent int) *Limiter {
	if tpmLimit <= 0 {
		panic(fmt.Sprintf("ratelimit: tpmLimit must be positive, got %d", tpmLimit))
	}
	if maxConcurrent <= 0 {
		panic(fmt.Sprintf("ratelimit: maxConcurrent must be positive, got %d", maxConcurrent))
	}

	return &Limiter{
		capacity:   float64(tpmLimit),
		rate:       float64(tpmLimit) / 60.0,
		balance:    float64(tpmLimit),
		lastRefill: time.Now(),
		slots:      make(chan struct{}, maxConcurrent),
		now:        time.Now,
	}
}

// Acquire blocks until a concurrency slot is free and the token balance
// covers the estimated cost, then reserves both. It returns early with the
// context error when the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (*Permit, error) {
	if estimatedTokens < 0 {
		return nil, fmt.Errorf("ratelimit: negative token estimate %d", estimatedTokens)
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		l.mu.Lock()
		l.refillLocked()
		if l.balance >= float64(estimatedTokens) {
			l.balance -= float64(estimatedTokens)
			l.mu.Unlock()
			return &Permit{limiter: l, estimated: estimatedTokens}, nil
		}

		deficit := float64(estimatedTokens) - l.balance
		wait := time.Duration(deficit / l.rate * float64(time.Second))
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			<-l.slots
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Release reconciles the reserved estimate against the actual token usage
// and frees the concurrency slot. An actual cost above the estimate drains
// the bucket further (it may go negative, delaying future acquires); a cost
// below it credits the difference back.
func (p *Permit) Release(actualTokens int) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()

	l := p.limiter

	l.mu.Lock()
	l.refillLocked()
	l.balance -= float64(actualTokens - p.estimated)
	if l.balance > l.capacity {
		l.balance = l.capacity
	}
	l.mu.Unlock()

	<-l.slots
}

// InFlight returns the number of currently held concurrency slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

// Balance returns the current token balance after refill.
func (l *Limiter) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.balance
}

func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.lastRefill = now
	l.balance += elapsed * l.rate
	if l.balance > l.capacity {
		l.balance = l.capacity
	}
}
