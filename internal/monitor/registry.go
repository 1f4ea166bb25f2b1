package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/pkg/sshutil"
)

// DefaultLifetime is how long a connection may live before it is replaced.
const DefaultLifetime = 30 * time.Second

// Registry keeps at most one SSH connection per host and reuses it across
// polls until it reaches its lifetime. Age is counted from creation, so a
// busy connection is still recycled once it gets old.
//
// The entry map is guarded by mu. Each host also has a one-slot channel
// that serializes connect, run and close for that host, so work on
// different hosts never waits on each other for longer than a map lookup.
// A slot is dropped once nobody holds or waits on it, so hostnames that
// never connected do not accumulate.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	slots   map[string]*hostSlot

	dialer   Dialer
	lifetime time.Duration
	now      func() time.Time
	log      logger.Logger
}

// hostSlot is a host's one-slot lock. refs counts the goroutines holding
// or waiting on it and is guarded by Registry.mu.
type hostSlot struct {
	ch   chan struct{}
	refs int
}

// entry holds a connection and its creation time.
type entry struct {
	client    sshutil.SSHClient
	createdAt time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLifetime sets the maximum connection age. Non-positive values keep the default.
func WithLifetime(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.lifetime = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty registry that opens connections with dialer.
func NewRegistry(dialer Dialer, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:  make(map[string]*entry),
		slots:    make(map[string]*hostSlot),
		dialer:   dialer,
		lifetime: DefaultLifetime,
		now:      time.Now,
		log:      logger.NewEnvLogger("[registry]"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lifetime returns the configured maximum connection age.
func (r *Registry) Lifetime() time.Duration {
	return r.lifetime
}

// Lease pins a host's connection to one caller. While a lease is held no
// sweep, release or competing acquire can close that connection.
type Lease struct {
	hostname string
	entry    *entry
	registry *Registry
	slot     *hostSlot
	released atomic.Bool
	once     sync.Once
}

// Hostname returns the host the lease belongs to.
func (l *Lease) Hostname() string {
	return l.hostname
}

// Client returns the leased connection.
func (l *Lease) Client() sshutil.SSHClient {
	return l.entry.client
}

// CreatedAt returns when the leased connection was opened.
func (l *Lease) CreatedAt() time.Time {
	return l.entry.createdAt
}

// Release hands the host back to the registry. The connection stays open
// for reuse. Calling Release more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.released.Store(true)
		l.registry.unlock(l.hostname, l.slot)
	})
}

// Acquire returns a lease on a live connection to hostname, opening one if
// needed. A connection past its lifetime is closed and replaced. Callers
// for the same host queue behind the current holder and then reuse its
// connection. On a failed open nothing is stored.
//
// The caller must Release the lease. Calling Release(hostname) from the
// goroutine holding the lease deadlocks.
func (r *Registry) Acquire(ctx context.Context, hostname string, cred Credential) (*Lease, error) {
	slot := r.slot(hostname)
	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		r.unref(hostname, slot)
		return nil, errors.WrapWithCode(ctx.Err(), errors.ErrConnect,
			fmt.Sprintf("Gave up waiting for the connection to '%s'", hostname),
			"Another poll is still using this host.")
	}

	r.mu.Lock()
	e, ok := r.entries[hostname]
	r.mu.Unlock()

	if ok {
		if !r.expired(e, r.now()) {
			r.log.Info("Reusing existing connection with %s", hostname)
			return &Lease{hostname: hostname, entry: e, registry: r, slot: slot}, nil
		}
		r.log.Debug("Connection with %s is older than %s, reconnecting", hostname, r.lifetime)
		r.closeEntry(hostname, e)
	}

	client, err := r.dialer.Open(ctx, hostname, cred)
	if err == nil && client == nil {
		err = fmt.Errorf("dialer returned no connection")
	}
	if err != nil {
		r.unlock(hostname, slot)
		if errors.Code(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrConnect,
				fmt.Sprintf("Couldn't connect to '%s'", hostname), "")
		}
		r.log.Warn("Connection to %s failed: %s", hostname, errors.Message(err))
		return nil, err
	}

	e = &entry{client: client, createdAt: r.now()}
	r.mu.Lock()
	r.entries[hostname] = e
	r.mu.Unlock()
	r.log.Info("New connection established with %s", hostname)

	return &Lease{hostname: hostname, entry: e, registry: r, slot: slot}, nil
}

// Run executes script on the leased connection. It fails with NOT_FOUND
// if the lease was released or its connection is no longer registered.
// A transport failure drops the connection so the next Acquire reconnects.
func (r *Registry) Run(ctx context.Context, lease *Lease, script string) (stdout, stderr string, err error) {
	if lease == nil || lease.released.Load() {
		return "", "", errors.New(errors.ErrNotFound, "No leased connection", "")
	}

	r.mu.Lock()
	current, ok := r.entries[lease.hostname]
	r.mu.Unlock()
	if !ok || current != lease.entry {
		return "", "", errors.New(errors.ErrNotFound,
			fmt.Sprintf("No connection with %s", lease.hostname), "")
	}

	out, errOut, _, err := current.client.ExecContext(ctx, script)
	if err != nil {
		r.closeEntry(lease.hostname, current)
		if errors.Code(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Couldn't run the status script on %s", lease.hostname), "")
		}
		return "", "", err
	}

	r.log.Info("Script executed on %s", lease.hostname)
	return string(out), string(errOut), nil
}

// Release closes and forgets the connection to hostname, waiting for any
// lease on it to be released first. It is a no-op for unknown hosts.
func (r *Registry) Release(hostname string) {
	r.mu.Lock()
	_, ok := r.entries[hostname]
	r.mu.Unlock()
	if !ok {
		return
	}

	slot := r.slot(hostname)
	slot.ch <- struct{}{}
	defer r.unlock(hostname, slot)

	r.mu.Lock()
	e, ok := r.entries[hostname]
	r.mu.Unlock()
	if ok {
		r.closeEntry(hostname, e)
	}
}

// Sweep closes every connection older than the lifetime and returns how
// many were removed. Leased hosts are skipped rather than waited on; they
// are caught by a later sweep or replaced on their next Acquire.
func (r *Registry) Sweep() int {
	r.log.Debug("Running cleanup")
	now := r.now()

	r.mu.Lock()
	var expired []string
	for hostname, e := range r.entries {
		if r.expired(e, now) {
			expired = append(expired, hostname)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, hostname := range expired {
		slot := r.slot(hostname)
		select {
		case slot.ch <- struct{}{}:
		default:
			r.unref(hostname, slot)
			r.log.Debug("Skipping %s during cleanup: connection in use", hostname)
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[hostname]
		r.mu.Unlock()
		// Re-check: the entry may have been replaced while unlocked
		if ok && r.expired(e, now) {
			r.closeEntry(hostname, e)
			removed++
		}
		r.unlock(hostname, slot)
	}
	return removed
}

// Shutdown closes every connection. It waits for outstanding leases and is
// safe to call more than once.
func (r *Registry) Shutdown() {
	r.log.Debug("Closing all connections")
	hosts := r.Hosts()
	for _, hostname := range hosts {
		r.Release(hostname)
	}
	if len(hosts) > 0 {
		r.log.Info("Closed %d connection(s)", len(hosts))
	}
}

// Size returns the number of registered connections.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Hosts returns the registered hostnames, sorted.
func (r *Registry) Hosts() []string {
	r.mu.Lock()
	hosts := make([]string, 0, len(r.entries))
	for hostname := range r.entries {
		hosts = append(hosts, hostname)
	}
	r.mu.Unlock()
	sort.Strings(hosts)
	return hosts
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return now.Sub(e.createdAt) > r.lifetime
}

// slot returns the per-host lock, creating it on first use, and takes a
// reference on it. Every call must be paired with unref or unlock.
func (r *Registry) slot(hostname string) *hostSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[hostname]
	if !ok {
		s = &hostSlot{ch: make(chan struct{}, 1)}
		r.slots[hostname] = s
	}
	s.refs++
	return s
}

// unref drops a reference taken by slot and forgets the slot once unused.
func (r *Registry) unref(hostname string, s *hostSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.refs--
	if s.refs == 0 && r.slots[hostname] == s {
		delete(r.slots, hostname)
	}
}

// unlock frees a held slot and drops the holder's reference.
func (r *Registry) unlock(hostname string, s *hostSlot) {
	<-s.ch
	r.unref(hostname, s)
}

// slotCount returns how many hosts currently have a lock allocated.
func (r *Registry) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// closeEntry removes e if it is still the registered entry and closes its
// connection. Callers hold the host's slot.
func (r *Registry) closeEntry(hostname string, e *entry) {
	r.mu.Lock()
	if r.entries[hostname] == e {
		delete(r.entries, hostname)
	}
	r.mu.Unlock()

	if err := e.client.Close(); err != nil {
		r.log.Debug("Closing connection with %s: %v", hostname, err)
	}
	r.log.Info("Connection closed with %s", hostname)
}
