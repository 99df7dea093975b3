//go:build !linux

// Author: momentics <momentics@gmail.com>
package sysaffinity

import "runtime"

// otherPinner is a no-op pinner for platforms without
// sched_setaffinity, mirroring the teacher's affinity_stub.go fallback.
type otherPinner struct{}

func newPlatformPinner() Pinner {
	return &otherPinner{}
}

func (p *otherPinner) NumCPU() int { return runtime.NumCPU() }

func (p *otherPinner) PinCurrentThread(cpuID int) error {
	return nil
}
