// Package ratelimit provides FIFO token-bucket admission control for calls to
// external providers.
package ratelimit

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	// ErrInvalidRate is returned when a limiter is built with a non-positive rate.
	ErrInvalidRate = errors.New("ratelimit: rate must be greater than zero")
	// ErrExceedsCapacity is returned when a single request asks for more tokens
	// than the bucket can ever hold.
	ErrExceedsCapacity = errors.New("ratelimit: requested tokens exceed bucket capacity")
)

// Observer receives the time a request spent waiting for tokens.
type Observer interface {
	ObserveWait(limiter string, wait time.Duration)
}

// Limiter is a token bucket refilled continuously at rate tokens/second up to
// capacity. Requests that cannot be satisfied immediately wait in strict
// arrival order; a large request at the head blocks smaller ones behind it.
type Limiter struct {
	name     string
	rate     float64
	capacity float64
	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	queue    *list.List
	draining bool
	wake     chan struct{}
}

type waiter struct {
	tokens  float64
	ready   chan struct{}
	granted bool
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithName labels the limiter for metrics and logs.
func WithName(name string) Option {
	return func(l *Limiter) { l.name = name }
}

// WithObserver reports queue wait times.
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// New builds a limiter that refills ratePerSecond tokens per second and holds
// at most burst tokens. A burst of zero or less defaults to ratePerSecond.
// The bucket starts full.
func New(ratePerSecond, burst float64, opts ...Option) (*Limiter, error) {
	if ratePerSecond <= 0 || math.IsNaN(ratePerSecond) || math.IsInf(ratePerSecond, 0) {
		return nil, ErrInvalidRate
	}
	if burst <= 0 {
		burst = ratePerSecond
	}
	l := &Limiter{
		rate:     ratePerSecond,
		capacity: burst,
		tokens:   burst,
		queue:    list.New(),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.last = l.now()
	return l, nil
}

// Name returns the limiter label.
func (l *Limiter) Name() string { return l.name }

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 { return l.rate }

// Capacity returns the bucket size.
func (l *Limiter) Capacity() float64 { return l.capacity }

// Acquire blocks until tokens are available and debits them. When the queue
// is empty and the bucket holds enough tokens it returns without suspending.
// If ctx ends first the request leaves the queue and ctx.Err() is returned.
func (l *Limiter) Acquire(ctx context.Context, tokens float64) error {
	if tokens <= 0 {
		return nil
	}
	if tokens > l.capacity {
		return fmt.Errorf("%w: %.2f > %.2f", ErrExceedsCapacity, tokens, l.capacity)
	}

	start := l.now()
	l.mu.Lock()
	l.refillLocked(start)
	if l.queue.Len() == 0 && l.tokens >= tokens {
		l.tokens -= tokens
		l.mu.Unlock()
		l.observe(0)
		return nil
	}
	w := &waiter{tokens: tokens, ready: make(chan struct{})}
	elem := l.queue.PushBack(w)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	select {
	case <-w.ready:
		l.observe(l.now().Sub(start))
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if w.granted {
			// the grant raced the cancellation; the tokens are already spent
			l.mu.Unlock()
			l.observe(l.now().Sub(start))
			return nil
		}
		wasHead := l.queue.Front() == elem
		l.queue.Remove(elem)
		l.mu.Unlock()
		if wasHead {
			l.kick()
		}
		return ctx.Err()
	}
}

// Execute acquires tokens and then runs fn. Tokens are not refunded when fn
// fails: the call was attempted and consumed capacity upstream.
func (l *Limiter) Execute(ctx context.Context, tokens float64, fn func(context.Context) error) error {
	if err := l.Acquire(ctx, tokens); err != nil {
		return err
	}
	return fn(ctx)
}

// Tokens reports the currently available tokens after refilling.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(l.now())
	return l.tokens
}

// Pending reports the number of queued requests.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// drain grants queued requests in order. Only one drain loop runs per limiter.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		front := l.queue.Front()
		if front == nil {
			l.draining = false
			l.mu.Unlock()
			return
		}
		l.refillLocked(l.now())
		w := front.Value.(*waiter)
		if l.tokens >= w.tokens {
			l.tokens -= w.tokens
			w.granted = true
			l.queue.Remove(front)
			close(w.ready)
			l.mu.Unlock()
			continue
		}
		deficit := w.tokens - l.tokens
		wait := time.Duration(math.Ceil(deficit / l.rate * float64(time.Second)))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-l.wake:
			timer.Stop()
		}
	}
}

func (l *Limiter) kick() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.capacity, l.tokens+elapsed*l.rate)
	l.last = now
}

func (l *Limiter) observe(wait time.Duration) {
	if l.observer != nil {
		l.observer.ObserveWait(l.name, wait)
	}
}
