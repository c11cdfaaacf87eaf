// Package vagrant drives a Vagrant-managed virtual machine through the
// vagrant CLI. The machine is described by a Vagrantfile on disk; this
// package only starts, stops, and interrogates it.
package vagrant

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"shellbox/internal/environ"
)

// Config locates the machine and the CLI.
type Config struct {
	// Dir is the directory holding the Vagrantfile.
	Dir string

	// Binary is the vagrant executable to invoke.
	Binary string

	// Machine is the machine name inside the Vagrantfile.
	Machine string
}

// DefaultConfig returns the conventional single-machine setup in the
// current directory.
func DefaultConfig() Config {
	return Config{
		Dir:     ".",
		Binary:  "vagrant",
		Machine: "default",
	}
}

// Provider implements environ.Provider on top of the vagrant CLI.
type Provider struct {
	cfg    Config
	logger *slog.Logger
}

var _ environ.Provider = (*Provider)(nil)

// New validates that cfg points at a Vagrant environment and returns a
// Provider. The machine itself is not touched until Up.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.Binary == "" {
		cfg.Binary = "vagrant"
	}
	if cfg.Machine == "" {
		cfg.Machine = "default"
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if _, err := os.Stat(filepath.Join(cfg.Dir, "Vagrantfile")); err != nil {
		return nil, fmt.Errorf("vagrant: no Vagrantfile in %s: %w", cfg.Dir, err)
	}
	return &Provider{cfg: cfg, logger: logger}, nil
}

// Up boots the machine. Blocks until the CLI returns, which for a cold
// box includes the import and provision steps.
func (p *Provider) Up(ctx context.Context) error {
	_, err := p.output(ctx, "up", p.cfg.Machine)
	return err
}

// Destroy tears the machine down without confirmation.
func (p *Provider) Destroy(ctx context.Context) error {
	_, err := p.output(ctx, "destroy", "-f", p.cfg.Machine)
	return err
}

// Reload restarts the machine, re-applying the Vagrantfile.
func (p *Provider) Reload(ctx context.Context) error {
	_, err := p.output(ctx, "reload", p.cfg.Machine)
	return err
}

// Status asks the CLI for the machine state.
func (p *Provider) Status(ctx context.Context) (environ.Status, error) {
	out, err := p.output(ctx, "status", p.cfg.Machine, "--machine-readable")
	if err != nil {
		return "", err
	}
	return parseStatus(out, p.cfg.Machine)
}

// ConnectionInfo derives SSH coordinates from `vagrant ssh-config`,
// reading the identity file it names.
func (p *Provider) ConnectionInfo(ctx context.Context) (environ.ConnectionInfo, error) {
	out, err := p.output(ctx, "ssh-config", p.cfg.Machine)
	if err != nil {
		return environ.ConnectionInfo{}, err
	}
	cfg, err := parseSSHConfig(out)
	if err != nil {
		return environ.ConnectionInfo{}, err
	}
	key, err := os.ReadFile(cfg.identityFile)
	if err != nil {
		return environ.ConnectionInfo{}, fmt.Errorf("vagrant: read identity file: %w", err)
	}
	return environ.ConnectionInfo{
		Host:       cfg.host,
		Port:       cfg.port,
		User:       cfg.user,
		PrivateKey: key,
	}, nil
}

// output runs a vagrant subcommand in the Vagrantfile directory and
// captures combined stdout and stderr.
func (p *Provider) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.cfg.Binary, args...)
	cmd.Dir = p.cfg.Dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	p.logger.Debug("vagrant command", slog.String("args", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("vagrant %s: %w: %s", args[0], err, lastLine(buf.String()))
	}
	return buf.String(), nil
}

// lastLine extracts the final non-empty line of CLI output, which is
// where vagrant puts its error summary.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
