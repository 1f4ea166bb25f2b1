package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"

	"github.com/rileyhilliard/gpustat/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExecContext runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all or ctx ended
// first, in which case the session is torn down.
func (c *Client) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.NewSession()
	if err != nil {
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrConnect,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, nil, -1, errors.WrapWithCode(ctx.Err(), errors.ErrExec,
			"Status script did not finish in time",
			"The host may be overloaded. Try increasing connection.exec_timeout.")
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			// Command ran, just had non-zero exit
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to execute status script",
			"Connection may have dropped mid-command.")
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
}

// Exec is ExecContext without a deadline.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return c.ExecContext(context.Background(), cmd)
}
