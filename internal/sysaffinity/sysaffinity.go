// Package sysaffinity pins the calling goroutine's OS thread to a
// specific CPU on Linux; no other package of the gateway calls it.
// Adapted from the teacher's CGO-based NUMA
// affinity helpers into a pure-Go implementation using
// golang.org/x/sys/unix's sched_setaffinity wrapper, since the gateway
// has no CGO dependency anywhere else and shouldn't introduce one just
// for core pinning.
//
// Author: momentics <momentics@gmail.com>
package sysaffinity

import "runtime"

// Pinner pins the calling goroutine's OS thread to a CPU set.
type Pinner interface {
	// PinCurrentThread locks the calling goroutine to its OS thread and
	// restricts that thread to cpuID. Callers must not unlock the
	// goroutine from its thread afterward.
	PinCurrentThread(cpuID int) error
	// NumCPU returns the number of CPUs available for pinning.
	NumCPU() int
}

// New returns the platform Pinner: a real sched_setaffinity-backed
// pinner on Linux, a no-op elsewhere (see sysaffinity_linux.go and
// sysaffinity_other.go).
func New() Pinner {
	return newPlatformPinner()
}

// lockThread is shared by platform implementations: affinity only means
// something once the goroutine is nailed to one OS thread for its
// lifetime.
func lockThread() {
	runtime.LockOSThread()
}
