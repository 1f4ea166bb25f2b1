package sshutil

import "context"

// SSHClient defines the interface for SSH command execution.
// Both the real Client and mock implementations satisfy this interface.
type SSHClient interface {
	// ExecContext runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

var _ SSHClient = (*Client)(nil)
