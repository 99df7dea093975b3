// Package ipfilter implements the first gate of the gating pipeline: a
// CIDR-based allow list checked before rate limiting and authentication.
//
// Author: momentics <momentics@gmail.com>
package ipfilter

import (
	"fmt"
	"net"
	"sync"
)

// Filter holds a parsed set of allowed CIDR blocks. An empty, disabled
// Filter allows every address, matching spec section 4.2's "disabled by
// default" behavior.
type Filter struct {
	mu      sync.RWMutex
	enabled bool
	nets    []*net.IPNet
	raw     []string
}

// New parses entries (bare IPs or CIDR blocks) into a Filter. A bare IP
// is widened to a /32 (or /128 for IPv6) host route.
func New(enabled bool, entries []string) (*Filter, error) {
	f := &Filter{enabled: enabled}
	for _, e := range entries {
		n, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("ipfilter: invalid entry %q: %w", e, err)
		}
		f.nets = append(f.nets, n)
		f.raw = append(f.raw, e)
	}
	return f, nil
}

func parseEntry(entry string) (*net.IPNet, error) {
	if _, ipnet, err := net.ParseCIDR(entry); err == nil {
		return ipnet, nil
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("not an IP or CIDR")
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Allowed reports whether addr may proceed to the next gate. Disabled
// filters always allow; an invalid/unparsable addr is denied.
func (f *Filter) Allowed(addr string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.enabled {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range f.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Reload atomically swaps the entry set.
func (f *Filter) Reload(enabled bool, entries []string) error {
	nf, err := New(enabled, entries)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = nf.enabled
	f.nets = nf.nets
	f.raw = nf.raw
	return nil
}

// Enabled reports whether the filter is currently active.
func (f *Filter) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}
