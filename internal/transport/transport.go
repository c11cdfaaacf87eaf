// Package transport moves code files into the execution environment and
// runs commands there over SSH. One connection is dialed lazily and
// reused for the life of the environment.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"shellbox/internal/environ"
	"shellbox/internal/executor"
)

const (
	// DefaultTail is how many trailing characters of combined output a
	// command invocation reports.
	DefaultTail = 200

	defaultDialTimeout = 10 * time.Second

	// timeoutExitCode is what the remote timeout wrapper exits with when
	// it kills the command.
	timeoutExitCode = 124

	// timeoutMarker is appended to output when a command timed out.
	timeoutMarker = "Timeout"
)

// CoordinateSource hands out the environment's current SSH coordinates.
// *environ.Manager satisfies it.
type CoordinateSource interface {
	ConnectionInfo() (environ.ConnectionInfo, error)
}

// Options tunes an SSH transport.
type Options struct {
	// Tail caps the characters of command output kept, counted from the
	// end. 0 means DefaultTail, negative means unlimited.
	Tail int

	// DialTimeout bounds the TCP/handshake phase of connecting.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// SSH is the x/crypto/ssh implementation of executor.Transport. Files go
// over an sftp subsystem channel, commands over exec channels, all on one
// cached client connection. If the connection goes stale, for example
// after an environment restart, calls redial once before giving up.
type SSH struct {
	source      CoordinateSource
	tail        int
	dialTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

var _ executor.Transport = (*SSH)(nil)

// NewSSH returns a transport reading coordinates from source. Nothing is
// dialed until the first Upload or Run.
func NewSSH(source CoordinateSource, opts Options) *SSH {
	tail := opts.Tail
	if tail == 0 {
		tail = DefaultTail
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SSH{
		source:      source,
		tail:        tail,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// Upload stages a local file into the environment. Parent directories of
// remotePath are created as needed.
func (s *SSH) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := s.connect()
	if err != nil {
		return err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		// Stale connection; redial once.
		s.reset()
		if client, err = s.connect(); err != nil {
			return err
		}
		if sc, err = sftp.NewClient(client); err != nil {
			return fmt.Errorf("transport: sftp session: %w", err)
		}
	}
	defer sc.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", localPath, err)
	}
	defer src.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sc.MkdirAll(dir); err != nil {
			return fmt.Errorf("transport: mkdir %s: %w", dir, err)
		}
	}
	dst, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("transport: create %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("transport: copy to %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("transport: close %s: %w", remotePath, err)
	}

	s.logger.Debug("uploaded file", slog.String("local", localPath), slog.String("remote", remotePath))
	return nil
}

// Run executes argv in the environment and captures combined output. A
// command killed by the remote timeout wrapper comes back with exit code
// 124, TimedOut set, and the timeout marker appended to its output. The
// output is trimmed to the configured tail window.
func (s *SSH) Run(ctx context.Context, argv []string) (executor.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return executor.CommandResult{}, err
	}

	session, err := s.session()
	if err != nil {
		return executor.CommandResult{}, err
	}
	defer session.Close()

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	cmd := joinArgs(argv)
	s.logger.Debug("running remote command", slog.String("cmd", cmd))

	exitCode := 0
	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return executor.CommandResult{}, fmt.Errorf("transport: run %q: %w", cmd, err)
		}
		exitCode = exitErr.ExitStatus()
	}

	output, timedOut := decorate(buf.String(), exitCode, s.tail)
	return executor.CommandResult{
		Output:   output,
		ExitCode: exitCode,
		TimedOut: timedOut,
	}, nil
}

// decorate appends the timeout marker when the exit code says the remote
// wrapper killed the command, then trims to the tail window. Marker
// before trim, so the marker always survives truncation.
func decorate(output string, exitCode, tail int) (string, bool) {
	timedOut := exitCode == timeoutExitCode
	if timedOut {
		output += "\n" + timeoutMarker
	}
	return Tail(output, tail), timedOut
}

// Close drops the cached connection. Safe to call more than once.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// session opens an exec channel, redialing once if the cached connection
// has gone stale.
func (s *SSH) session() (*ssh.Session, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err == nil {
		return session, nil
	}
	s.reset()
	if client, err = s.connect(); err != nil {
		return nil, err
	}
	session, err = client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("transport: session: %w", err)
	}
	return session, nil
}

func (s *SSH) connect() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	info, err := s.source.ConnectionInfo()
	if err != nil {
		return nil, fmt.Errorf("transport: coordinates: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(info.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("transport: parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User: info.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Each environment mints a fresh host key, so there is no known
		// key to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.dialTimeout,
	}
	addr := net.JoinHostPort(info.Host, strconv.Itoa(info.Port))
	s.logger.Debug("dialing execution environment", slog.String("addr", addr))

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	s.client = client
	return client, nil
}

func (s *SSH) reset() {
	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.mu.Unlock()
}

// Tail returns the last n characters of s. Non-positive n keeps
// everything.
func Tail(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// joinArgs renders argv as a shell command line, quoting arguments with
// whitespace or quotes in them.
func joinArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			parts[i] = strconv.Quote(arg)
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}
