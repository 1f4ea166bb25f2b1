package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/gpustat/pkg/sshutil"
)

// MockDialer hands out MockClients and records every dial attempt.
type MockDialer struct {
	mu       sync.Mutex
	dials    map[string]int
	clients  map[string][]*MockClient
	failures map[string]error
	delays   map[string]time.Duration
	setup    func(*MockClient)
}

// NewMockDialer creates a dialer where every host connects successfully.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		dials:    make(map[string]int),
		clients:  make(map[string][]*MockClient),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
	}
}

// OnConnect registers a hook that configures each new client before it is returned.
func (d *MockDialer) OnConnect(fn func(*MockClient)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setup = fn
}

// FailHost makes dials to host return err. A nil err clears the failure.
func (d *MockDialer) FailHost(host string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, host)
		return
	}
	d.failures[host] = err
}

// DelayHost makes dials to host block for delay before completing.
func (d *MockDialer) DelayHost(host string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[host] = delay
}

// Dial simulates opening a password-authenticated connection.
func (d *MockDialer) Dial(ctx context.Context, host, username, password string) (sshutil.SSHClient, error) {
	d.mu.Lock()
	d.dials[host]++
	delay := d.delays[host]
	failure := d.failures[host]
	setup := d.setup
	d.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", host, ctx.Err())
		case <-timer.C:
		}
	}

	if failure != nil {
		return nil, failure
	}

	client := NewMockClient(host)
	if setup != nil {
		setup(client)
	}

	d.mu.Lock()
	d.clients[host] = append(d.clients[host], client)
	d.mu.Unlock()
	return client, nil
}

// DialCount returns how many times host was dialed, failures included.
func (d *MockDialer) DialCount(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[host]
}

// TotalDials returns the number of dial attempts across all hosts.
func (d *MockDialer) TotalDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.dials {
		n += c
	}
	return n
}

// Clients returns the clients handed out for host, oldest first.
func (d *MockDialer) Clients(host string) []*MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockClient, len(d.clients[host]))
	copy(out, d.clients[host])
	return out
}

// LastClient returns the most recent client for host, or nil.
func (d *MockDialer) LastClient(host string) *MockClient {
	clients := d.Clients(host)
	if len(clients) == 0 {
		return nil
	}
	return clients[len(clients)-1]
}
