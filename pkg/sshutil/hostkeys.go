package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyMismatchError is returned when a host presents a key that differs
// from the one recorded in known_hosts.
type HostKeyMismatchError struct {
	Hostname       string
	KnownHostsPath string
	Fingerprint    string
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s (presented %s)", e.Hostname, e.Fingerprint)
}

// Suggestion returns the remediation hint for a changed host key.
func (e *HostKeyMismatchError) Suggestion() string {
	return fmt.Sprintf("If the host was reinstalled, remove its line from %s and retry.", e.KnownHostsPath)
}

// TrustOnFirstUse returns a host key callback backed by the known_hosts file
// at path. Unknown hosts are appended on first contact; a host whose key
// changed is rejected with a HostKeyMismatchError. The file and its parent
// directory are created if missing.
func TrustOnFirstUse(path string) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, err
	}
	f.Close()

	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		mu.Lock()
		defer mu.Unlock()

		// Reload every time so keys recorded by other dials are visible
		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("read known_hosts %s: %w", path, err)
		}

		err = check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !stderrors.As(err, &keyErr) {
			return err
		}

		if len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:       hostname,
				KnownHostsPath: path,
				Fingerprint:    ssh.FingerprintSHA256(key),
			}
		}

		return appendKnownHost(path, hostname, key)
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("record host key: %w", err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("record host key: %w", err)
	}
	return nil
}
