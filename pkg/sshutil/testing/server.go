package testing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"
)

// ExecHandler produces the result of a command run against a Server.
type ExecHandler func(cmd string) (stdout, stderr string, exitCode int)

// ServerOptions configures an in-process SSH server.
type ServerOptions struct {
	Username string
	Password string
	Handler  ExecHandler
}

// Server is a password-authenticated SSH server listening on loopback.
// Sessions only support exec requests.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	handler  ExecHandler
	hostKey  ssh.PublicKey

	conns atomic.Int32
	execs atomic.Int32

	mu      sync.Mutex
	active  []*ssh.ServerConn
	done    chan struct{}
	closeMu sync.Once
}

// NewServer starts a server on 127.0.0.1 with a fresh ed25519 host key.
func NewServer(opts ServerOptions) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	handler := opts.Handler
	if handler == nil {
		handler = func(string) (string, string, int) { return "", "", 0 }
	}

	s := &Server{
		handler: handler,
		hostKey: signer.PublicKey(),
		done:    make(chan struct{}),
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == opts.Username && string(password) == opts.Password {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("invalid credentials")
		},
	}
	s.config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.listener = listener

	go s.serve()
	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// Connections returns the number of completed handshakes.
func (s *Server) Connections() int {
	return int(s.conns.Load())
}

// Execs returns the number of exec requests served.
func (s *Server) Execs() int {
	return int(s.execs.Load())
}

// DropConnections closes every established connection while leaving the
// listener up, simulating a host that reset its sessions.
func (s *Server) DropConnections() {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()
	for _, c := range active {
		c.Close()
	}
}

// Close stops the listener and drops all connections.
func (s *Server) Close() error {
	var err error
	s.closeMu.Do(func() {
		err = s.listener.Close()
		<-s.done
		s.DropConnections()
	})
	return err
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(netConn)
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	s.conns.Add(1)
	s.mu.Lock()
	s.active = append(s.active, sshConn)
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		if req.WantReply {
			req.Reply(true, nil)
		}

		s.execs.Add(1)
		stdout, stderr, code := s.handler(payload.Command)
		if stdout != "" {
			ch.Write([]byte(stdout))
		}
		if stderr != "" {
			ch.Stderr().Write([]byte(stderr))
		}
		status := struct{ Status uint32 }{uint32(code)}
		ch.SendRequest("exit-status", false, ssh.Marshal(&status))
		return
	}
}
