//go:build linux

// Author: momentics <momentics@gmail.com>
package sysaffinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

type linuxPinner struct{}

func newPlatformPinner() Pinner {
	return &linuxPinner{}
}

func (p *linuxPinner) NumCPU() int {
	return runtime.NumCPU()
}

func (p *linuxPinner) PinCurrentThread(cpuID int) error {
	lockThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sysaffinity: sched_setaffinity cpu=%d: %w", cpuID, err)
	}
	return nil
}
