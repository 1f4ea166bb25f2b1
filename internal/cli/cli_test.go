package cli

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/internal/monitor"
	"github.com/rileyhilliard/gpustat/pkg/sshutil"
	sshtest "github.com/rileyhilliard/gpustat/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points config discovery at empty directories and clears every
// variable the loader reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"HOSTNAMES", "GPUSER_NAME", "GPUSER_PASSWORD", "DEBUG",
		"GPUSTAT_HOSTS", "GPUSTAT_CREDENTIALS_USERNAME", "GPUSTAT_CREDENTIALS_PASSWORD",
		"GPUSTAT_DEBUG", "GPUSTAT_SCRIPT_PATH", "GPUSTAT_LOG_FILE",
		"GPUSTAT_LOG_MAX_SIZE_MB", "GPUSTAT_LOG_MAX_BACKUPS", "GPUSTAT_LOG_MAX_AGE_DAYS",
		"GPUSTAT_SERVER_ADDR", "GPUSTAT_SERVER_CACHE_TTL", "GPUSTAT_SERVER_CORS_ORIGINS",
		"GPUSTAT_CONNECTION_LIFETIME", "GPUSTAT_CONNECTION_SWEEP_INTERVAL",
		"GPUSTAT_CONNECTION_CONNECT_TIMEOUT", "GPUSTAT_CONNECTION_EXEC_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("GPUSTAT_CONNECTION_KNOWN_HOSTS", filepath.Join(home, "known_hosts"))
	t.Setenv("GPUSTAT_CONNECTION_CONNECT_TIMEOUT", "2s")

	oldCfg, oldDebug := cfgFile, debugFlag
	cfgFile, debugFlag = "", false
	t.Cleanup(func() { cfgFile, debugFlag = oldCfg, oldDebug })
}

func startStatusServer(t *testing.T) *sshtest.Server {
	t.Helper()
	srv, err := sshtest.NewServer(sshtest.ServerOptions{
		Username: "gpuser",
		Password: "s3cret",
		Handler: func(string) (string, string, int) {
			return "index,name,utilization\n0,A100,87\n", "", 0
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestPollCommand_JSONOverSSH(t *testing.T) {
	isolateEnv(t)
	srv := startStatusServer(t)
	t.Setenv("HOSTNAMES", srv.Addr()+",127.0.0.1:1")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")

	var out bytes.Buffer
	err := pollCommand(context.Background(), &out, "", false)
	require.NoError(t, err, "one reachable host is enough")

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), "non-terminal output is JSON")
	require.Len(t, got, 2)

	assert.Equal(t, srv.Addr(), got[0]["hostname"])
	assert.Equal(t, true, got[0]["success"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"index": "0", "name": "A100", "utilization": "87"},
	}, got[0]["status"])

	assert.Equal(t, "127.0.0.1:1", got[1]["hostname"])
	assert.Equal(t, false, got[1]["success"])
	assert.Equal(t, []interface{}{}, got[1]["status"])
}

func TestPollCommand_HostsFlag(t *testing.T) {
	isolateEnv(t)
	srv := startStatusServer(t)
	t.Setenv("HOSTNAMES", "unused-host")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")

	var out bytes.Buffer
	require.NoError(t, pollCommand(context.Background(), &out, srv.Addr(), true))

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, srv.Addr(), got[0]["hostname"])
}

func TestPollCommand_AllHostsFail(t *testing.T) {
	isolateEnv(t)
	t.Setenv("HOSTNAMES", "127.0.0.1:1")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")

	var out bytes.Buffer
	err := pollCommand(context.Background(), &out, "", true)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnect))
	assert.Contains(t, out.String(), `"success": false`)
}

func TestPollCommand_InvalidConfig(t *testing.T) {
	isolateEnv(t)

	err := pollCommand(context.Background(), &bytes.Buffer{}, "", true)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestPollCommand_MissingScript(t *testing.T) {
	isolateEnv(t)
	t.Setenv("HOSTNAMES", "gpu-01")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")
	t.Setenv("GPUSTAT_SCRIPT_PATH", filepath.Join(t.TempDir(), "missing.sh"))

	err := pollCommand(context.Background(), &bytes.Buffer{}, "", true)

	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	isolateEnv(t)
	t.Setenv("HOSTNAMES", "gpu-01")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveCommand(ctx, "127.0.0.1:0") }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServeCommand_BadCORSPattern(t *testing.T) {
	isolateEnv(t)
	t.Setenv("HOSTNAMES", "gpu-01")
	t.Setenv("GPUSER_NAME", "gpuser")
	t.Setenv("GPUSER_PASSWORD", "s3cret")
	t.Setenv("GPUSTAT_SERVER_CORS_ORIGINS", "http://*.example.com")

	err := serveCommand(context.Background(), "127.0.0.1:0")

	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1m", time.Minute, false},
		{"100ms", 0, true},
		{"soon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseInterval(tt.in)
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitHosts(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitHosts(" a, b,,c ,"))
	assert.Nil(t, splitHosts(""))
}

func TestBuildInitConfig(t *testing.T) {
	t.Run("merges and dedupes hosts", func(t *testing.T) {
		cfg, err := buildInitConfig(initAnswers{
			Aliases:    []string{"dgx-a", "dgx-b"},
			ExtraHosts: "dgx-b, gpu-01",
			Username:   " ml ",
			Password:   "pw",
			Addr:       "127.0.0.1:8080",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"dgx-a", "dgx-b", "gpu-01"}, cfg.Hosts)
		assert.Equal(t, "ml", cfg.Credentials.Username)
		assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
		assert.Equal(t, 30*time.Second, cfg.Connection.Lifetime)
	})

	t.Run("empty addr keeps default", func(t *testing.T) {
		cfg, err := buildInitConfig(initAnswers{ExtraHosts: "a", Username: "u", Password: "p"})
		require.NoError(t, err)
		assert.Equal(t, ":5000", cfg.Server.Addr)
	})

	t.Run("no hosts", func(t *testing.T) {
		_, err := buildInitConfig(initAnswers{Username: "u", Password: "p"})
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})

	t.Run("no password", func(t *testing.T) {
		_, err := buildInitConfig(initAnswers{ExtraHosts: "a", Username: "u"})
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})
}

func TestFormValidators(t *testing.T) {
	assert.NoError(t, validateHostList("a,b"))
	assert.Error(t, validateHostList("gpu 01"))
	assert.NoError(t, required("username")("ml"))
	assert.EqualError(t, required("username")("  "), "username is required")
}

func TestVersionOutput(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	defer SetVersionInfo(origVersion, origCommit, origDate)
	SetVersionInfo("1.2.3", "abc123", "2024-01-01")

	var buf bytes.Buffer
	printVersion(&buf, false)
	out := buf.String()
	assert.Contains(t, out, "gpustat v1.2.3")
	assert.Contains(t, out, "commit: abc123")
	assert.Contains(t, out, "built: 2024-01-01")
	assert.Contains(t, out, runtime.Version())

	buf.Reset()
	printVersion(&buf, true)
	assert.Equal(t, "1.2.3\n", buf.String())
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
	assert.Equal(t, "v1.0.0", formatVersion("1.0.0"))
	assert.Equal(t, "v1.0.0", formatVersion("v1.0.0"))
}

func TestPrintError(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, errors.New(errors.ErrConfig, "No hosts configured", "Set HOSTNAMES"))
		assert.Contains(t, buf.String(), "✗ No hosts configured")
		assert.Contains(t, buf.String(), "Set HOSTNAMES")
	})

	t.Run("wrapped structured", func(t *testing.T) {
		var buf bytes.Buffer
		inner := errors.New(errors.ErrConnect, "Couldn't connect", "")
		printError(&buf, fmt.Errorf("poll: %w", inner))
		assert.Equal(t, "✗ Couldn't connect\n", buf.String())
	})

	t.Run("unknown command", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, stderrors.New(`unknown command "foo" for "gpustat"`))
		assert.Contains(t, buf.String(), "gpustat --help")
	})

	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, stderrors.New("boom"))
		assert.Equal(t, "✗ boom\n", buf.String())
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrConfig, "bad", "")))
	assert.Equal(t, 2, exitCode(stderrors.New("unknown flag: --nope")))
	assert.Equal(t, 1, exitCode(errors.New(errors.ErrConnect, "down", "")))
	assert.Equal(t, 1, exitCode(stderrors.New("boom")))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "poll", "watch", "init", "version", "completion"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	for _, flag := range []string{"config", "debug", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			completionCmd.SetOut(&buf)
			defer completionCmd.SetOut(nil)

			require.NoError(t, completionCmd.RunE(completionCmd, []string{shell}))
			assert.Contains(t, buf.String(), "gpustat")
		})
	}
}

// newTestApp builds an app over a mock dialer with one open connection.
func newTestApp(t *testing.T) (*app, *sshtest.MockDialer, *logger.BufferLogger) {
	t.Helper()
	dialer := sshtest.NewMockDialer()
	log := logger.NewBufferLogger()
	registry := monitor.NewRegistry(
		monitor.DialerFunc(func(ctx context.Context, hostname string, cred monitor.Credential) (sshutil.SSHClient, error) {
			return dialer.Dial(ctx, hostname, cred.Username, cred.Password)
		}),
		monitor.WithLogger(log))

	lease, err := registry.Acquire(context.Background(), "gpu-01", monitor.Credential{Username: "u", Password: "p"})
	require.NoError(t, err)
	lease.Release()

	return &app{cfg: config.DefaultConfig(), registry: registry, log: logger.Noop()}, dialer, log
}

func TestAppClose_SweeperOwnsShutdown(t *testing.T) {
	a, dialer, log := newTestApp(t)

	sweeper := a.startSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(ctx))

	a.Close()
	a.Close()

	assert.Equal(t, 1, log.Count("debug", "Closing all connections"))
	assert.Equal(t, 1, dialer.LastClient("gpu-01").CloseCount())
	assert.Equal(t, 0, a.registry.Size())
}

func TestAppClose_WithoutSweeper(t *testing.T) {
	a, dialer, log := newTestApp(t)

	a.Close()

	assert.Equal(t, 1, log.Count("debug", "Closing all connections"))
	assert.Equal(t, 1, dialer.LastClient("gpu-01").CloseCount())
}
