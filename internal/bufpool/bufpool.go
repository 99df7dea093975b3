// Package bufpool provides size-segmented byte buffer pools for the
// reactor's read/write scratch buffers and the video streamer's frame
// buffers, reducing allocation churn under sustained connection load.
//
// Adapted from the teacher's pool/bufferpool.go NUMA-segmented
// BufferPoolManager; the gateway runs without CGO so segmentation here
// is by buffer size class rather than NUMA node, using sync.Pool per
// class instead of the teacher's platform-specific allocators.
//
// Author: momentics <momentics@gmail.com>
package bufpool

import "sync"

// sizeClasses mirrors typical HTTP/WS read chunk and MJPEG frame sizes.
var sizeClasses = []int{4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20}

// Manager hands out pooled byte slices sized to the smallest class that
// fits the request, like the teacher's GetPool(numaNode) but keyed by
// size class instead of NUMA node.
type Manager struct {
	pools []*sync.Pool
}

// New constructs a Manager with one sync.Pool per size class.
func New() *Manager {
	m := &Manager{pools: make([]*sync.Pool, len(sizeClasses))}
	for i, sz := range sizeClasses {
		sz := sz
		m.pools[i] = &sync.Pool{
			New: func() any { return make([]byte, sz) },
		}
	}
	return m
}

// Get returns a buffer with length >= n. Requests larger than the
// biggest size class allocate directly and are not pooled.
func (m *Manager) Get(n int) []byte {
	for i, sz := range sizeClasses {
		if n <= sz {
			buf := m.pools[i].Get().([]byte)
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// Put returns buf to its size class's pool. Buffers whose capacity
// doesn't match a known class (including over-sized one-off
// allocations) are dropped rather than pooled.
func (m *Manager) Put(buf []byte) {
	c := cap(buf)
	for i, sz := range sizeClasses {
		if c == sz {
			m.pools[i].Put(buf[:sz])
			return
		}
	}
}
