package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/gpustat/internal/logger"
)

// Poller fetches status from many hosts in parallel.
type Poller struct {
	fetcher HostFetcher
	log     logger.Logger
}

// NewPoller creates a poller backed by fetcher.
func NewPoller(fetcher HostFetcher) *Poller {
	return &Poller{
		fetcher: fetcher,
		log:     logger.NewEnvLogger("[poll]"),
	}
}

// Poll fetches every host concurrently and waits for all of them.
// Result i always belongs to hosts[i], whatever order the fetches finish
// in, and a failing host only affects its own result. Safe for concurrent use.
func (p *Poller) Poll(ctx context.Context, hosts []string, cred Credential) PollResult {
	start := time.Now()
	results := make(PollResult, len(hosts))

	var wg sync.WaitGroup
	for i, hostname := range hosts {
		wg.Add(1)
		go func(i int, hostname string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = failedResult(hostname, fmt.Sprintf("internal error: %v", r))
				}
			}()
			results[i] = p.fetcher.Fetch(ctx, hostname, cred)
		}(i, hostname)
	}
	wg.Wait()

	p.log.Debug("Polled %d host(s) in %s, %d ok", len(hosts), time.Since(start).Round(time.Millisecond), results.Succeeded())
	return results
}
