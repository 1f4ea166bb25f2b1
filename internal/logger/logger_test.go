package logger

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvLogger_Debug(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		forced    bool
		expectLog bool
	}{
		{
			name:      "logs when GPUSTAT_DEBUG is set",
			envValue:  "1",
			expectLog: true,
		},
		{
			name:      "logs when forced on",
			forced:    true,
			expectLog: true,
		},
		{
			name:      "does not log when GPUSTAT_DEBUG is empty",
			envValue:  "",
			expectLog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log.SetOutput(&buf)
			defer log.SetOutput(os.Stderr)

			t.Setenv(DebugEnv, tt.envValue)
			SetDebug(tt.forced)
			defer SetDebug(false)

			l := NewEnvLogger("[test]")
			l.Debug("test message %s", "arg")

			if tt.expectLog {
				assert.Contains(t, buf.String(), "[test] DEBUG: test message arg")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestEnvLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := NewEnvLogger("[registry]")
	l.Info("New connection established with %s", "gpu-01")
	l.Warn("slow host %s", "gpu-02")
	l.Error("failed %d", 3)

	out := buf.String()
	assert.Contains(t, out, "[registry] New connection established with gpu-01")
	assert.Contains(t, out, "[registry] WARN: slow host gpu-02")
	assert.Contains(t, out, "[registry] ERROR: failed 3")
}

func TestNoop(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := Noop()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")

	assert.Empty(t, buf.String())
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()
	l.Info("Reusing existing connection with %s", "gpu-01")
	l.Info("Reusing existing connection with %s", "gpu-02")
	l.Warn("careful")

	assert.True(t, l.HasLevel("info"))
	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))
	assert.Equal(t, 2, l.Count("info", "Reusing existing connection"))
	assert.Equal(t, 1, l.Count("info", "gpu-02"))

	l.Clear()
	assert.Empty(t, l.Snapshot())
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Info("message %d", i)
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.Snapshot(), 50)
}

// captureStderr points os.Stderr at a pipe for the rest of the test and
// returns a func that yields everything written to it.
func captureStderr(t *testing.T) func() string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	origStderr, origWriter := os.Stderr, log.Writer()
	os.Stderr = w
	t.Cleanup(func() {
		os.Stderr = origStderr
		log.SetOutput(origWriter)
	})

	return func() string {
		require.NoError(t, w.Close())
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		return string(data)
	}
}

func TestOpenFile(t *testing.T) {
	stderr := captureStderr(t)
	path := filepath.Join(t.TempDir(), "log", "gpustat.log")

	sink, err := OpenFile(FileOptions{Path: path, MaxBackups: 7, MaxAgeDays: 7})
	require.NoError(t, err)

	NewEnvLogger("[test]").Info("written to both")
	require.NoError(t, sink.Close())
	// Second close is a no-op
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[test] written to both")
	assert.Contains(t, stderr(), "[test] written to both")
}

func TestOpenFile_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	_, err := OpenFile(FileOptions{Path: filepath.Join(blocker, "gpustat.log")})
	assert.Error(t, err)
}

func TestFileSink_Rotate(t *testing.T) {
	captureStderr(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gpustat.log")

	sink, err := OpenFile(FileOptions{Path: path, MaxBackups: 7, Daily: true})
	require.NoError(t, err)
	defer sink.Close()

	l := NewEnvLogger("[test]")
	l.Info("before rotation")
	require.NoError(t, sink.Rotate())
	l.Info("after rotation")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after rotation")
	assert.NotContains(t, string(data), "before rotation")
}

func TestQuietStderr_WithFile(t *testing.T) {
	stderr := captureStderr(t)
	path := filepath.Join(t.TempDir(), "gpustat.log")

	sink, err := OpenFile(FileOptions{Path: path})
	require.NoError(t, err)

	restore := QuietStderr(sink)
	NewEnvLogger("[registry]").Info("Reusing existing connection with gpu-01")
	restore()
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Reusing existing connection with gpu-01")
	assert.NotContains(t, stderr(), "Reusing existing connection")
}

func TestQuietStderr_WithoutFile(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	restore := QuietStderr(nil)
	NewEnvLogger("[test]").Info("dropped")
	restore()
	NewEnvLogger("[test]").Info("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	buf := NewBufferLogger()
	SetDefault(buf)
	Default().Info("hello")

	assert.Equal(t, 1, buf.Count("info", "hello"))
}
