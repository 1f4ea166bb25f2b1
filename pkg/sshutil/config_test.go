package sshutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParseConfigAliases(t *testing.T) {
	configPath := writeSSHConfig(t, `
Host dgx-a
    HostName 10.0.0.11
    User mlops
    Port 2222

Host dgx-b
    HostName dgx-b.lab.internal

Host plain
    User ops

Host *
    ServerAliveInterval 60

Host rack-* !rack-9
    User ops
`)

	aliases, err := ParseConfigAliases(configPath)
	require.NoError(t, err)

	assert.Equal(t, []ConfigAlias{
		{Alias: "dgx-a", Target: "10.0.0.11:2222", User: "mlops"},
		{Alias: "dgx-b", Target: "dgx-b.lab.internal"},
		{Alias: "plain", User: "ops"},
	}, aliases)
}

func TestParseConfigAliases_NotExists(t *testing.T) {
	aliases, err := ParseConfigAliases(filepath.Join(t.TempDir(), "missing"))
	assert.NoError(t, err)
	assert.Nil(t, aliases)
}

func TestParseConfigAliases_EmptyAndComments(t *testing.T) {
	for name, content := range map[string]string{
		"empty":    "",
		"comments": "# nothing here\n# still nothing\n",
	} {
		t.Run(name, func(t *testing.T) {
			aliases, err := ParseConfigAliases(writeSSHConfig(t, content))
			require.NoError(t, err)
			assert.Empty(t, aliases)
		})
	}
}

func TestParseConfigAliases_StopsAtMatch(t *testing.T) {
	configPath := writeSSHConfig(t, `
Host before
    HostName 10.0.0.1

Match host *.corp
    User corp

Host after
    HostName 10.0.0.2
`)

	aliases, err := ParseConfigAliases(configPath)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "before", aliases[0].Alias)
}

func TestParseConfigAliases_DuplicatesAndMultiplePatterns(t *testing.T) {
	configPath := writeSSHConfig(t, `
Host gpu1 gpu2
    User shared

Host gpu1
    Port 2200
`)

	aliases, err := ParseConfigAliases(configPath)
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.Equal(t, ConfigAlias{Alias: "gpu1", Target: "gpu1:2200", User: "shared"}, aliases[0])
	assert.Equal(t, ConfigAlias{Alias: "gpu2", User: "shared"}, aliases[1])
}

func TestConfigAliasLabel(t *testing.T) {
	tests := []struct {
		alias ConfigAlias
		want  string
	}{
		{ConfigAlias{Alias: "gpu-01"}, "gpu-01"},
		{ConfigAlias{Alias: "gpu-01", Target: "10.0.0.5"}, "gpu-01 (10.0.0.5)"},
		{ConfigAlias{Alias: "gpu-01", Target: "10.0.0.5:2222", User: "ml"}, "gpu-01 (ml@10.0.0.5:2222)"},
		{ConfigAlias{Alias: "gpu-01", User: "ml"}, "gpu-01 (ml@gpu-01)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.alias.Label())
		})
	}
}
