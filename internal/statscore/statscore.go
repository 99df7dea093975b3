// Package statscore is the lock-free hot-path stats core: atomic request
// and latency counters with periodic rate recomputation, snapshotted for
// the /stats HTTP surface.
//
// Author: momentics <momentics@gmail.com>
package statscore

import (
	"math"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time, read-only view of the accumulated stats.
type Snapshot struct {
	TotalRequests   uint64
	TotalErrors     uint64
	ActiveConns     int64
	MinLatencyNanos int64
	MaxLatencyNanos int64
	AvgLatencyNanos int64
	RequestsPerSec  float64
	Uptime          time.Duration
}

// Core accumulates request counters and latency extrema using only
// atomic operations on the request hot path, matching the connection
// stats fields in the teacher's protocol layer.
type Core struct {
	startedAt time.Time

	totalRequests uint64
	totalErrors   uint64
	activeConns   int64

	latencySum uint64
	latencyCnt uint64
	latencyMin int64 // stored as-is; maxInt64Sentinel until first sample
	latencyMax int64

	lastRateAt    int64 // unix nanos, atomically swapped
	lastRateCount uint64
	cachedRate    atomicFloat
}

const maxInt64Sentinel = int64(1) << 62

// New returns a ready-to-use Core.
func New() *Core {
	return &Core{
		startedAt:  time.Now(),
		latencyMin: maxInt64Sentinel,
	}
}

// IncRequest records one completed request with its latency.
func (c *Core) IncRequest(latency time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	n := int64(latency)
	atomic.AddUint64(&c.latencySum, uint64(n))
	atomic.AddUint64(&c.latencyCnt, 1)

	for {
		cur := atomic.LoadInt64(&c.latencyMin)
		if n >= cur {
			break
		}
		if atomic.CompareAndSwapInt64(&c.latencyMin, cur, n) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&c.latencyMax)
		if n <= cur {
			break
		}
		if atomic.CompareAndSwapInt64(&c.latencyMax, cur, n) {
			break
		}
	}
}

// IncError records one failed request.
func (c *Core) IncError() {
	atomic.AddUint64(&c.totalErrors, 1)
}

// ConnOpened/ConnClosed track the active connection gauge.
func (c *Core) ConnOpened() { atomic.AddInt64(&c.activeConns, 1) }
func (c *Core) ConnClosed() { atomic.AddInt64(&c.activeConns, -1) }

// MaybeRecomputeRate recomputes the cached requests/sec figure if at
// least one second has elapsed since the last recompute. Callers (the
// reactor's housekeeping pass) should invoke this at least once per
// second; it is a no-op otherwise so the hot path never pays for it.
func (c *Core) MaybeRecomputeRate(now time.Time) {
	nowNanos := now.UnixNano()
	last := atomic.LoadInt64(&c.lastRateAt)
	if nowNanos-last < int64(time.Second) {
		return
	}
	if !atomic.CompareAndSwapInt64(&c.lastRateAt, last, nowNanos) {
		return
	}
	total := atomic.LoadUint64(&c.totalRequests)
	prevCount := atomic.SwapUint64(&c.lastRateCount, total)
	elapsed := time.Duration(nowNanos - last)
	if last == 0 || elapsed <= 0 {
		c.cachedRate.Store(0)
		return
	}
	delta := float64(total - prevCount)
	c.cachedRate.Store(delta / elapsed.Seconds())
}

// Snapshot returns the current counters for the /stats endpoint.
func (c *Core) Snapshot() Snapshot {
	min := atomic.LoadInt64(&c.latencyMin)
	if min == maxInt64Sentinel {
		min = 0
	}
	cnt := atomic.LoadUint64(&c.latencyCnt)
	sum := atomic.LoadUint64(&c.latencySum)
	var avg int64
	if cnt > 0 {
		avg = int64(sum / cnt)
	}
	return Snapshot{
		TotalRequests:   atomic.LoadUint64(&c.totalRequests),
		TotalErrors:     atomic.LoadUint64(&c.totalErrors),
		ActiveConns:     atomic.LoadInt64(&c.activeConns),
		MinLatencyNanos: min,
		MaxLatencyNanos: atomic.LoadInt64(&c.latencyMax),
		AvgLatencyNanos: avg,
		RequestsPerSec:  c.cachedRate.Load(),
		Uptime:          time.Since(c.startedAt),
	}
}

// atomicFloat stores a float64 as its bit pattern in a uint64, since
// sync/atomic has no float64 type.
type atomicFloat struct {
	bits uint64
}

func (f *atomicFloat) Store(v float64) {
	atomic.StoreUint64(&f.bits, math.Float64bits(v))
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.bits))
}
