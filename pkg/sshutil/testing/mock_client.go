// Package testing provides in-memory and in-process stand-ins for SSH
// connections so registry and poller code can be exercised without a
// real GPU host.
package testing

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/rileyhilliard/gpustat/pkg/sshutil"
)

// ErrClosed is returned by Exec on a client that has been closed.
var ErrClosed = errors.New("connection closed")

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
	// Delay is slept before responding; ctx cancellation cuts it short.
	Delay time.Duration
	// Panic makes ExecContext panic with this value instead of responding.
	Panic interface{}
}

// MockClient simulates an SSH connection for testing.
// Commands resolve against canned responses; an unmatched command falls
// back to the default response.
type MockClient struct {
	mu        sync.Mutex
	host      string
	address   string
	closed    bool
	closes    int
	execs     int
	commands  map[string]CommandResponse // pattern -> response
	fallback  CommandResponse
	lastCmd   string
	createdAt time.Time
}

// NewMockClient creates a new mock SSH client whose commands succeed with empty output.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:      host,
		address:   host + ":22",
		commands:  make(map[string]CommandResponse),
		createdAt: time.Now(),
	}
}

// ExecContext returns the configured response for cmd.
func (m *MockClient) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, ErrClosed
	}
	m.execs++
	m.lastCmd = cmd
	resp := m.lookup(cmd)
	m.mu.Unlock()

	if resp.Panic != nil {
		panic(resp.Panic)
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, nil, -1, ctx.Err()
		case <-timer.C:
		}
	}

	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
}

func (m *MockClient) lookup(cmd string) CommandResponse {
	// Exact matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp
		}
	}
	return m.fallback
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetDefaultResponse sets the response for commands matching no pattern.
func (m *MockClient) SetDefaultResponse(resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// IsClosed reports whether Close has been called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount returns how many times Close has been called.
func (m *MockClient) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// ExecCount returns how many commands were run.
func (m *MockClient) ExecCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execs
}

// LastCommand returns the most recent command passed to ExecContext.
func (m *MockClient) LastCommand() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCmd
}

var _ sshutil.SSHClient = (*MockClient)(nil)
