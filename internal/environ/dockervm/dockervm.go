// Package dockervm provides the execution environment as a Docker
// container running sshd. It is the lightweight alternative to a full
// Vagrant VM: same SSH surface, much faster bring-up.
package dockervm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/xid"

	"shellbox/internal/environ"
)

// sshPort is where the image's sshd listens inside the container.
const sshPort nat.Port = "2222/tcp"

// Provider implements environ.Provider with a single sshd container.
type Provider struct {
	cli    *client.Client
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	containerID string
	privateKey  []byte
}

var _ environ.Provider = (*Provider)(nil)

// New creates a new Provider and initializes the Docker connection. The
// container itself is not created until Up.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Provider{cli: cli, cfg: cfg, logger: logger}, nil
}

// Up pulls the image, creates the sandbox container with a fresh SSH
// keypair, and starts it.
func (p *Provider) Up(ctx context.Context) error {
	p.logger.Info("ensuring docker image is available", slog.String("image", p.cfg.Image))
	reader, err := p.cli.ImagePull(ctx, p.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	reader.Close()

	privateKey, authorizedKey, err := generateKeypair()
	if err != nil {
		return fmt.Errorf("failed to generate ssh keypair: %w", err)
	}

	name := p.cfg.Name
	if name == "" {
		name = "shellbox-" + xid.New().String()
	}

	containerCfg := &container.Config{
		Image: p.cfg.Image,
		Env: []string{
			"USER_NAME=" + p.cfg.User,
			"PUBLIC_KEY=" + strings.TrimSpace(string(authorizedKey)),
			"SUDO_ACCESS=true",
		},
		ExposedPorts: nat.PortSet{sshPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		// Empty HostPort lets the daemon pick a free one; we read it
		// back from inspect.
		PortBindings: nat.PortMap{sshPort: []nat.PortBinding{{HostIP: "127.0.0.1"}}},
		Resources: container.Resources{
			Memory:   p.cfg.MemoryLimit,
			NanoCPUs: int64(p.cfg.CPULimit * 1e9),
		},
	}

	resp, err := p.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	p.mu.Lock()
	p.containerID = resp.ID
	p.privateKey = privateKey
	p.mu.Unlock()

	p.logger.Info("sandbox container started",
		slog.String("name", name),
		slog.String("id", resp.ID[:12]))
	return nil
}

// Destroy force-removes the container and closes the client connection.
func (p *Provider) Destroy(ctx context.Context) error {
	p.mu.Lock()
	id := p.containerID
	p.containerID = ""
	p.mu.Unlock()

	if id == "" {
		return p.cli.Close()
	}
	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.cli.Close()
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return p.cli.Close()
}

// Reload restarts the container. The daemon may hand out a new host port,
// so callers must refresh connection info afterwards.
func (p *Provider) Reload(ctx context.Context) error {
	id, err := p.id()
	if err != nil {
		return err
	}
	if err := p.cli.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container: %w", err)
	}
	return nil
}

// Status reports running only once the container is up and sshd accepts
// TCP connections on the mapped port. A container whose init is still
// generating host keys is starting, not running.
func (p *Provider) Status(ctx context.Context) (environ.Status, error) {
	p.mu.Lock()
	id := p.containerID
	p.mu.Unlock()
	if id == "" {
		return environ.StatusNotCreated, nil
	}

	inspect, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return environ.StatusStopped, nil
	}

	port, err := hostPort(inspect.NetworkSettings.Ports)
	if err != nil {
		return environ.StatusStarting, nil
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return environ.StatusStarting, nil
	}
	conn.Close()
	return environ.StatusRunning, nil
}

// ConnectionInfo reads the mapped SSH port back from inspect and pairs it
// with the keypair minted in Up.
func (p *Provider) ConnectionInfo(ctx context.Context) (environ.ConnectionInfo, error) {
	id, err := p.id()
	if err != nil {
		return environ.ConnectionInfo{}, err
	}

	inspect, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		return environ.ConnectionInfo{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	port, err := hostPort(inspect.NetworkSettings.Ports)
	if err != nil {
		return environ.ConnectionInfo{}, err
	}

	p.mu.Lock()
	key := p.privateKey
	p.mu.Unlock()

	return environ.ConnectionInfo{
		Host:       "127.0.0.1",
		Port:       port,
		User:       p.cfg.User,
		PrivateKey: key,
	}, nil
}

func (p *Provider) id() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.containerID == "" {
		return "", fmt.Errorf("dockervm: container not created")
	}
	return p.containerID, nil
}

// hostPort digs the host side of the sshd port mapping out of inspect
// output.
func hostPort(ports nat.PortMap) (int, error) {
	bindings := ports[sshPort]
	if len(bindings) == 0 {
		return 0, fmt.Errorf("dockervm: no host binding for %s", sshPort)
	}
	port, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return 0, fmt.Errorf("dockervm: bad host port %q: %w", bindings[0].HostPort, err)
	}
	return port, nil
}
