package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/pkg/sshutil"
	sshtest "github.com/rileyhilliard/gpustat/pkg/sshutil/testing"
)

var testCred = Credential{Username: "gpuser", Password: "s3cret"}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func dialerFor(d *sshtest.MockDialer) Dialer {
	return DialerFunc(func(ctx context.Context, hostname string, cred Credential) (sshutil.SSHClient, error) {
		return d.Dial(ctx, hostname, cred.Username, cred.Password)
	})
}

type registryFixture struct {
	dialer   *sshtest.MockDialer
	clock    *fakeClock
	log      *logger.BufferLogger
	registry *Registry
}

func newRegistryFixture(opts ...RegistryOption) *registryFixture {
	f := &registryFixture{
		dialer: sshtest.NewMockDialer(),
		clock:  newFakeClock(),
		log:    logger.NewBufferLogger(),
	}
	base := []RegistryOption{WithClock(f.clock.Now), WithLogger(f.log)}
	f.registry = NewRegistry(dialerFor(f.dialer), append(base, opts...)...)
	return f
}
