package ipfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledFilterAllowsEverything(t *testing.T) {
	f, err := New(false, nil)
	require.NoError(t, err)
	assert.True(t, f.Allowed("203.0.113.5"))
}

func TestCIDRAllowsMatchingAddress(t *testing.T) {
	f, err := New(true, []string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)
	assert.True(t, f.Allowed("10.1.2.3"))
	assert.True(t, f.Allowed("192.168.1.1"))
	assert.False(t, f.Allowed("172.16.0.1"))
}

func TestInvalidAddrIsDenied(t *testing.T) {
	f, err := New(true, []string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.False(t, f.Allowed("not-an-ip"))
}

func TestNewRejectsInvalidEntry(t *testing.T) {
	_, err := New(true, []string{"not-a-cidr-or-ip"})
	assert.Error(t, err)
}

func TestReloadSwapsEntries(t *testing.T) {
	f, err := New(true, []string{"10.0.0.0/8"})
	require.NoError(t, err)
	require.NoError(t, f.Reload(true, []string{"192.168.0.0/16"}))
	assert.False(t, f.Allowed("10.1.1.1"))
	assert.True(t, f.Allowed("192.168.5.5"))
}
