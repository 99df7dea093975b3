// Package ratelimit implements the gating pipeline's second stage: a
// per-IP sliding-window counter backed by a token-bucket burst allowance,
// with periodic garbage collection of stale visitor entries.
//
// Author: momentics <momentics@gmail.com>
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of a Check call. Limit and Remaining describe
// the sliding window's sustained-rate budget (requests_per_window),
// independent of whatever burst allowance the token bucket granted.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Limit      int
	Remaining  int
}

// visitor pairs a token-bucket limiter (burst control) with a sliding
// window counter (sustained-rate control) for one remote address, in the
// shape of the teacher-adjacent visitor map pattern.
type visitor struct {
	limiter  *rate.Limiter
	window   *slidingWindow
	lastSeen time.Time
}

// slidingWindow counts requests in the trailing windowSize interval using
// a coarse bucket ring, per spec section 3's RateWindow.
type slidingWindow struct {
	mu         sync.Mutex
	windowSize time.Duration
	bucketSize time.Duration
	buckets    []int
	bucketAt   []int64 // slot number (unix nanos / bucketSize) each bucket last counted
	limit      int
}

func newSlidingWindow(windowSize time.Duration, limit int) *slidingWindow {
	const numBuckets = 10
	return &slidingWindow{
		windowSize: windowSize,
		bucketSize: windowSize / numBuckets,
		buckets:    make([]int, numBuckets),
		bucketAt:   make([]int64, numBuckets),
		limit:      limit,
	}
}

// allow reports whether now falls under the window's limit and, if so,
// records it. remaining is the budget left after this call, clamped to
// zero, meaningful on both outcomes.
func (w *slidingWindow) allow(now time.Time) (ok bool, remaining int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rotate(now)
	total := 0
	for _, c := range w.buckets {
		total += c
	}
	if total >= w.limit {
		return false, 0
	}
	idx := w.indexFor(now)
	w.buckets[idx]++
	total++
	remaining = w.limit - total
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

func (w *slidingWindow) indexFor(t time.Time) int {
	slot := t.UnixNano() / int64(w.bucketSize)
	return int(slot) % len(w.buckets)
}

// rotate zeroes out buckets that have aged past the window.
func (w *slidingWindow) rotate(now time.Time) {
	cur := now.UnixNano() / int64(w.bucketSize)
	for i := range w.buckets {
		if cur-w.bucketAt[i] >= int64(len(w.buckets)) {
			w.buckets[i] = 0
		}
	}
	w.bucketAt[w.indexFor(now)] = cur
}

// Limiter is the process-wide per-IP rate limiter with a background GC
// sweep, grounded on the kari RateLimitMiddleware visitor map.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	requestsPerWindow int
	windowSize        time.Duration
	burstSize         int

	staleAfter time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// New constructs a Limiter and starts its GC goroutine. Call Stop to
// release it.
func New(requestsPerWindow int, windowSize time.Duration, burstSize int) *Limiter {
	l := &Limiter{
		visitors:          make(map[string]*visitor),
		requestsPerWindow: requestsPerWindow,
		windowSize:        windowSize,
		burstSize:         burstSize,
		staleAfter:        10 * time.Minute,
		stopCh:            make(chan struct{}),
	}
	go l.gcLoop()
	return l
}

func (l *Limiter) getVisitor(addr string) *visitor {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[addr]
	if !ok {
		ratePerSec := rate.Limit(float64(l.requestsPerWindow) / l.windowSize.Seconds())
		v = &visitor{
			limiter: rate.NewLimiter(ratePerSec, l.burstSize),
			window:  newSlidingWindow(l.windowSize, l.requestsPerWindow),
		}
		l.visitors[addr] = v
	}
	v.lastSeen = time.Now()
	return v
}

// Check evaluates both the token bucket and sliding window for addr.
// Both must allow the request; the more restrictive rejects. A bucket
// reservation is only kept once the window also allows, so a
// window-deny never burns part of the burst allowance. A burst size of
// zero or less disables the token bucket, leaving the window alone to
// decide.
func (l *Limiter) Check(addr string) Result {
	v := l.getVisitor(addr)
	now := time.Now()

	var reservation *rate.Reservation
	if l.burstSize > 0 {
		reservation = v.limiter.ReserveN(now, 1)
		if !reservation.OK() {
			return Result{Allowed: false, RetryAfter: l.windowSize, Limit: l.requestsPerWindow, Remaining: 0}
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			return Result{Allowed: false, RetryAfter: delay, Limit: l.requestsPerWindow, Remaining: 0}
		}
	}
	allowed, remaining := v.window.allow(now)
	if !allowed {
		if reservation != nil {
			reservation.CancelAt(now)
		}
		return Result{Allowed: false, RetryAfter: l.windowSize, Limit: l.requestsPerWindow, Remaining: 0}
	}
	return Result{Allowed: true, Limit: l.requestsPerWindow, Remaining: remaining}
}

// gcLoop periodically evicts visitors that haven't been seen recently,
// bounding the map's memory under churn from many distinct client IPs.
func (l *Limiter) gcLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.gc()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) gc() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.staleAfter)
	for addr, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, addr)
		}
	}
}

// Stop terminates the GC goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// VisitorCount reports the number of tracked visitors, for /stats.
func (l *Limiter) VisitorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
