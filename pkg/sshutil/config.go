package sshutil

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// ConfigAlias is a concrete Host alias from an OpenSSH config file.
type ConfigAlias struct {
	Alias string
	// Target is HostName, with Port appended when it isn't 22. Empty when
	// the alias already names the host directly.
	Target string
	User   string
}

// Label renders the alias for pickers, e.g. "dgx-a (mlops@10.0.0.11:2222)".
func (a ConfigAlias) Label() string {
	dest := a.Target
	if a.User != "" {
		if dest == "" {
			dest = a.Alias
		}
		dest = a.User + "@" + dest
	}
	if dest == "" {
		return a.Alias
	}
	return a.Alias + " (" + dest + ")"
}

// ConfigAliases lists the aliases in ~/.ssh/config. A missing file yields
// no aliases and no error.
func ConfigAliases() ([]ConfigAlias, error) {
	return ParseConfigAliases(filepath.Join(homeDir(), ".ssh", "config"))
}

// ParseConfigAliases reads configPath and returns its concrete aliases,
// sorted. Wildcard patterns and everything after the first Match block are
// ignored.
func ParseConfigAliases(configPath string) ([]ConfigAlias, error) {
	content, _, err := preprocessSSHConfig(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var aliases []ConfigAlias
	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			name := pattern.String()
			if seen[name] || strings.ContainsAny(name, "*?!") {
				continue
			}
			seen[name] = true
			aliases = append(aliases, resolveAlias(cfg, name))
		}
	}

	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Alias < aliases[j].Alias })
	return aliases, nil
}

func resolveAlias(cfg *ssh_config.Config, name string) ConfigAlias {
	a := ConfigAlias{Alias: name}
	a.User, _ = cfg.Get(name, "User")

	hostname, _ := cfg.Get(name, "HostName")
	port, _ := cfg.Get(name, "Port")
	if hostname == "" {
		hostname = name
	}
	switch {
	case port != "" && port != "22":
		a.Target = net.JoinHostPort(hostname, port)
	case hostname != name:
		a.Target = hostname
	}
	return a
}
