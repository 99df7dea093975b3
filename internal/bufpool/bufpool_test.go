package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsBufferOfRequestedLength(t *testing.T) {
	m := New()
	buf := m.Get(100)
	assert.Len(t, buf, 100)
}

func TestGetOversizedFallsBackToDirectAllocation(t *testing.T) {
	m := New()
	buf := m.Get(10 << 20)
	assert.Len(t, buf, 10<<20)
}

func TestPutGetReusesClassBuffer(t *testing.T) {
	m := New()
	buf := m.Get(4 << 10)
	m.Put(buf)
	reused := m.Get(1 << 10)
	assert.Len(t, reused, 1<<10)
}
