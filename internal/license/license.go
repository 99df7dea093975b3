// Package license wraps the engine binary's one-shot "--license" mode,
// used by the router's license subsurface to check and activate
// licenses without going through the long-lived engine subprocess.
//
// Author: momentics <momentics@gmail.com>
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Status is the parsed result of a license check.
type Status struct {
	Valid               bool   `json:"valid"`
	Status              string `json:"status"`
	HardwareFingerprint string `json:"hardware_fingerprint,omitempty"`
	ExpiresAt           string `json:"expires_at,omitempty"`
}

// Manager invokes the engine binary's one-shot license subcommands.
type Manager struct {
	binaryPath string
}

// New returns a Manager bound to the engine binary.
func New(binaryPath string) *Manager {
	return &Manager{binaryPath: binaryPath}
}

// Check runs "<engine> --license check" and parses its JSON stdout.
func (m *Manager) Check(ctx context.Context) (*Status, error) {
	return m.run(ctx, "check")
}

// Activate runs "<engine> --license add <key>".
func (m *Manager) Activate(ctx context.Context, key string) (*Status, error) {
	cmd := exec.CommandContext(ctx, m.binaryPath, "--license", "add", key)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("license: add: %w (%s)", err, stderr.String())
	}
	var s Status
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		return nil, fmt.Errorf("license: parse add output: %w", err)
	}
	return &s, nil
}

// Remove runs "<engine> --license remove".
func (m *Manager) Remove(ctx context.Context) (*Status, error) {
	return m.run(ctx, "remove")
}

func (m *Manager) run(ctx context.Context, subcommand string) (*Status, error) {
	cmd := exec.CommandContext(ctx, m.binaryPath, "--license", subcommand)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("license: %s: %w (%s)", subcommand, err, stderr.String())
	}
	var s Status
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		return nil, fmt.Errorf("license: parse %s output: %w", subcommand, err)
	}
	return &s, nil
}
