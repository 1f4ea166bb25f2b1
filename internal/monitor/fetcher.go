package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
)

// DefaultExecTimeout bounds connect plus script execution for one host.
const DefaultExecTimeout = 30 * time.Second

// HostFetcher produces the status of a single host.
type HostFetcher interface {
	Fetch(ctx context.Context, hostname string, cred Credential) HostResult
}

// Fetcher runs the status script on one host through the registry.
type Fetcher struct {
	registry    *Registry
	script      string
	execTimeout time.Duration
	log         logger.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithExecTimeout sets the per-host deadline. Non-positive values keep the default.
func WithExecTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.execTimeout = d
		}
	}
}

// WithFetchLogger sets the logger used for per-host failures.
func WithFetchLogger(l logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFetcher creates a fetcher that runs script on hosts from registry.
func NewFetcher(registry *Registry, script string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		registry:    registry,
		script:      script,
		execTimeout: DefaultExecTimeout,
		log:         logger.NewEnvLogger("[fetch]"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch connects to hostname (reusing a live connection when possible),
// runs the script and parses its output. Every failure, a panic included,
// comes back as a HostResult with Success false and the reason in Message.
// Any stderr output fails the host regardless of stdout.
func (f *Fetcher) Fetch(ctx context.Context, hostname string, cred Credential) (result HostResult) {
	defer func() {
		if p := recover(); p != nil {
			f.log.Error("Fetching status from %s panicked: %v", hostname, p)
			result = failedResult(hostname, fmt.Sprintf("internal error: %v", p))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, f.execTimeout)
	defer cancel()

	lease, err := f.registry.Acquire(ctx, hostname, cred)
	if err != nil {
		return f.fail(hostname, err)
	}
	defer lease.Release()

	stdout, stderr, err := f.registry.Run(ctx, lease, f.script)
	if err != nil {
		return f.fail(hostname, err)
	}

	if stderr != "" {
		return f.fail(hostname, errors.New(errors.ErrExec, "Script error: "+stderr, ""))
	}

	columns, rows, err := ParseCSV(stdout)
	if err != nil {
		return f.fail(hostname, errors.WrapWithCode(err, errors.ErrScript,
			"Couldn't parse script output", ""))
	}

	return HostResult{
		Hostname: hostname,
		Status:   rows,
		Success:  true,
		Columns:  columns,
	}
}

func (f *Fetcher) fail(hostname string, err error) HostResult {
	msg := errors.Message(err)
	f.log.Warn("%s: %s", hostname, msg)
	return failedResult(hostname, msg)
}
