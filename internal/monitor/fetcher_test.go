package monitor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	sshtest "github.com/rileyhilliard/gpustat/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = "nvidia-smi --query-gpu=index,utilization.gpu --format=csv"

func newTestFetcher(f *registryFixture, opts ...FetcherOption) *Fetcher {
	base := []FetcherOption{WithFetchLogger(f.log)}
	return NewFetcher(f.registry, testScript, append(base, opts...)...)
}

func respondWith(resp sshtest.CommandResponse) func(*sshtest.MockClient) {
	return func(c *sshtest.MockClient) {
		c.SetDefaultResponse(resp)
	}
}

func TestFetcher_Success(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.OnConnect(respondWith(sshtest.CommandResponse{
		Stdout: []byte("index,util\n0,45\n1,90\n"),
	}))

	result := newTestFetcher(f).Fetch(context.Background(), "gpu-01", testCred)

	assert.Equal(t, "gpu-01", result.Hostname)
	assert.True(t, result.Success)
	assert.Empty(t, result.Message)
	assert.Equal(t, []string{"index", "util"}, result.Columns)
	assert.Equal(t, []StatusRow{{"index": "0", "util": "45"}, {"index": "1", "util": "90"}}, result.Status)
	assert.Equal(t, testScript, f.dialer.LastClient("gpu-01").LastCommand())
}

func TestFetcher_EmptyOutputSucceeds(t *testing.T) {
	f := newRegistryFixture()

	result := newTestFetcher(f).Fetch(context.Background(), "gpu-01", testCred)

	assert.True(t, result.Success)
	assert.NotNil(t, result.Status)
	assert.Empty(t, result.Status)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostname":"gpu-01","status":[],"success":true}`, string(data))
}

func TestFetcher_StderrFailsHost(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.OnConnect(respondWith(sshtest.CommandResponse{
		Stdout: []byte("index,util\n0,45\n"),
		Stderr: []byte("nvidia-smi: command not found"),
	}))

	result := newTestFetcher(f).Fetch(context.Background(), "gpu-01", testCred)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Status)
	assert.Empty(t, result.Status)
	assert.Equal(t, "Script error: nvidia-smi: command not found", result.Message)
	assert.Equal(t, 1, f.log.Count("warn", "gpu-01: Script error"))

	// A script error is not a transport failure, so the connection is kept
	assert.Equal(t, 1, f.registry.Size())
}

func TestFetcher_NonZeroExitWithoutStderrSucceeds(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.OnConnect(respondWith(sshtest.CommandResponse{
		Stdout:   []byte("a\n1\n"),
		ExitCode: 1,
	}))

	result := newTestFetcher(f).Fetch(context.Background(), "gpu-01", testCred)
	assert.True(t, result.Success)
	assert.Len(t, result.Status, 1)
}

func TestFetcher_ConnectFailure(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.FailHost("gpu-01", stderrors.New("dial tcp 10.0.0.1:22: connect: connection refused"))

	result := newTestFetcher(f).Fetch(context.Background(), "gpu-01", testCred)

	assert.False(t, result.Success)
	assert.Empty(t, result.Status)
	assert.Contains(t, result.Message, "connection refused")
	assert.Equal(t, 0, f.registry.Size())
}

func TestFetcher_ExecTimeout(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.OnConnect(respondWith(sshtest.CommandResponse{Delay: 5 * time.Second}))

	start := time.Now()
	result := newTestFetcher(f, WithExecTimeout(30*time.Millisecond)).Fetch(context.Background(), "gpu-01", testCred)

	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), 2*time.Second)
	// A failed run drops the connection
	assert.Equal(t, 0, f.registry.Size())
}

func TestFetcher_RecoversPanic(t *testing.T) {
	f := newRegistryFixture()
	f.dialer.OnConnect(respondWith(sshtest.CommandResponse{Panic: "boom"}))

	fetcher := newTestFetcher(f)
	result := fetcher.Fetch(context.Background(), "gpu-01", testCred)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "boom")
	assert.True(t, f.log.HasLevel("error"))

	// The lease was returned, so the host is usable again
	f.dialer.LastClient("gpu-01").SetDefaultResponse(sshtest.CommandResponse{Stdout: []byte("a\n1\n")})
	result = fetcher.Fetch(context.Background(), "gpu-01", testCred)
	assert.True(t, result.Success)
	assert.Equal(t, 1, f.dialer.DialCount("gpu-01"))
}

func TestFetcher_ReusesConnectionAcrossFetches(t *testing.T) {
	f := newRegistryFixture()
	fetcher := newTestFetcher(f)

	for i := 0; i < 3; i++ {
		assert.True(t, fetcher.Fetch(context.Background(), "gpu-01", testCred).Success)
	}
	assert.Equal(t, 1, f.dialer.DialCount("gpu-01"))
	assert.Equal(t, 3, f.dialer.LastClient("gpu-01").ExecCount())
}
