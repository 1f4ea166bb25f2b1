package monitor

import (
	"context"

	"github.com/rileyhilliard/gpustat/pkg/sshutil"
)

// Dialer opens an authenticated remote-shell session to a host.
// Implementations return an AUTH or CONNECT error when the host can't be
// reached or rejects the credential.
type Dialer interface {
	Open(ctx context.Context, hostname string, cred Credential) (sshutil.SSHClient, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, hostname string, cred Credential) (sshutil.SSHClient, error)

// Open calls f.
func (f DialerFunc) Open(ctx context.Context, hostname string, cred Credential) (sshutil.SSHClient, error) {
	return f(ctx, hostname, cred)
}

// NewSSHDialer wraps a password-auth sshutil.Dialer as a registry Dialer.
func NewSSHDialer(d *sshutil.Dialer) Dialer {
	return DialerFunc(func(ctx context.Context, hostname string, cred Credential) (sshutil.SSHClient, error) {
		client, err := d.DialPassword(ctx, hostname, cred.Username, cred.Password)
		if err != nil {
			// Avoid a typed-nil interface
			return nil, err
		}
		return client, nil
	})
}
