package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds TCP connect plus the SSH handshake.
const DefaultTimeout = 10 * time.Second

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)
}

// matchWarningOnce ensures the SSH config Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// WarningHandler is a function that handles warning messages.
// If nil, warnings are printed to stderr via log.Printf.
var WarningHandler func(message string)

// emitWarning sends a warning through the configured handler or falls back to log.Printf.
func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// DialOptions controls how a Dialer connects.
type DialOptions struct {
	// Timeout bounds the TCP connect and the SSH handshake. Zero means DefaultTimeout.
	Timeout time.Duration

	// KnownHostsPath is the trust-on-first-use store. Unknown hosts are
	// recorded on first contact; changed keys are rejected. Empty disables
	// host key verification entirely.
	KnownHostsPath string

	// SSHConfigPath overrides ~/.ssh/config for HostName/Port/User lookups.
	SSHConfigPath string
}

// Dialer opens password-authenticated SSH connections.
// A single Dialer is safe for concurrent use.
type Dialer struct {
	timeout       time.Duration
	sshConfigPath string
	hostKeys      ssh.HostKeyCallback
}

// NewDialer prepares a Dialer, creating the known_hosts file when needed.
func NewDialer(opts DialOptions) (*Dialer, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	configPath := opts.SSHConfigPath
	if configPath == "" {
		configPath = filepath.Join(homeDir(), ".ssh", "config")
	}

	hostKeys := ssh.InsecureIgnoreHostKey() //nolint:gosec // No known_hosts configured
	if opts.KnownHostsPath != "" {
		cb, err := TrustOnFirstUse(expandPath(opts.KnownHostsPath))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't prepare known_hosts at "+opts.KnownHostsPath,
				"Check the directory exists and is writable")
		}
		hostKeys = cb
	}

	return &Dialer{
		timeout:       timeout,
		sshConfigPath: configPath,
		hostKeys:      hostKeys,
	}, nil
}

// DialPassword establishes an SSH connection to host using password auth.
// The host can be:
//   - An SSH config alias (e.g., "gpu-01")
//   - A hostname (e.g., "192.168.1.100")
//   - A hostname:port (e.g., "192.168.1.100:2222")
//
// HostName and Port are resolved from the SSH config when available. A
// non-empty username always wins over the config's User.
func (d *Dialer) DialPassword(ctx context.Context, host, username, password string) (*Client, error) {
	settings := resolveSSHSettings(host, d.sshConfigPath)
	if username != "" {
		settings.user = username
	}

	config := &ssh.ClientConfig{
		User:            settings.user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: d.hostKeys,
		Timeout:         d.timeout,
	}

	address := settings.address()
	netDialer := net.Dialer{Timeout: d.timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	// Abort the handshake if the caller gives up first
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	stop()
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(ctx, host, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: address,
	}, nil
}

// classifyHandshakeError maps handshake failures onto AUTH or CONNECT errors.
func classifyHandshakeError(ctx context.Context, host string, err error) error {
	var hostKeyErr *HostKeyMismatchError
	if stderrors.As(err, &hostKeyErr) {
		return errors.WrapWithCode(hostKeyErr, errors.ErrConnect,
			fmt.Sprintf("Host key for '%s' changed", host),
			hostKeyErr.Suggestion())
	}

	if ctx.Err() != nil {
		return errors.WrapWithCode(ctx.Err(), errors.ErrConnect,
			fmt.Sprintf("Timed out during SSH handshake with '%s'", host),
			"Host might be overloaded or the network is slow.")
	}

	if isAuthFailure(err) {
		return errors.WrapWithCode(err, errors.ErrAuth,
			fmt.Sprintf("Authentication failed for '%s'", host),
			suggestionForHandshakeError(err))
	}

	return errors.WrapWithCode(err, errors.ErrConnect,
		fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
		suggestionForHandshakeError(err))
}

func isAuthFailure(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods")
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname string
	port     string
	user     string
}

// address returns the host:port string for dialing.
func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSSHSettings parses the host string and resolves settings from the SSH config.
func resolveSSHSettings(host, sshConfigPath string) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		settings.user = host[:atIdx]
		host = host[atIdx+1:]
	}

	if colonIdx := strings.LastIndex(host, ":"); colonIdx != -1 {
		// Only treat the suffix as a port when it is all digits
		potentialPort := host[colonIdx+1:]
		isPort := len(potentialPort) > 0
		for _, c := range potentialPort {
			if c < '0' || c > '9' {
				isPort = false
				break
			}
		}
		if isPort {
			settings.port = potentialPort
			host = host[:colonIdx]
		}
	}

	settings.hostname = host

	// kevinburke/ssh_config doesn't support Match, so only parse content
	// before the first Match block
	content, matchLine, err := preprocessSSHConfig(sshConfigPath)
	if err != nil {
		return settings
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return settings
	}

	hostFound := false

	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		settings.hostname = hostname
		hostFound = true
	}

	if port, _ := cfg.Get(host, "Port"); port != "" {
		settings.port = port
		hostFound = true
	}

	if user, _ := cfg.Get(host, "User"); user != "" {
		settings.user = user
		hostFound = true
	}

	if matchLine > 0 && !hostFound {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"Host '%s' not found in SSH config (config has a Match block at line %d that may hide later entries). "+
					"If this host is defined after line %d, move it earlier in the config.",
				host, matchLine, matchLine))
		})
	}

	return settings
}

// Helper functions

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Try: ssh <host>"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname doesn't resolve. Check the hosts list for typos."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return "Check the username and password. The server must allow password authentication."
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Returns the original content if no Match directive is found.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}
