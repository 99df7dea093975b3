package sysaffinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReturnsUsablePinner(t *testing.T) {
	p := New()
	assert.Greater(t, p.NumCPU(), 0)
}

func TestPinCurrentThreadDoesNotErrorOnCPUZero(t *testing.T) {
	p := New()
	err := p.PinCurrentThread(0)
	assert.NoError(t, err)
}
