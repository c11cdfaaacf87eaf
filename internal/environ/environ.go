// Package environ manages the lifecycle of the isolated execution
// environment: one virtual machine or container, created before the first
// batch runs, reused across batches, and destroyed exactly once.
package environ

import "context"

// State is the manager-level lifecycle state of the environment.
type State int32

const (
	StateDown State = iota
	StateStarting
	StateReady
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Status is a provider-level report of the underlying machine, as the
// backend sees it. The manager polls it until the machine is running.
type Status string

const (
	StatusNotCreated Status = "not_created"
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
)

// ConnectionInfo carries the SSH coordinates of a running environment.
type ConnectionInfo struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte // PEM-encoded private key accepted by the host
}

// Provider drives one concrete environment backend. Implementations exist
// for Vagrant-managed VMs and for SSH-reachable Docker containers.
//
// Up and Reload only issue the bring-up request; the manager owns the
// readiness polling on top of Status.
type Provider interface {
	Up(ctx context.Context) error
	Destroy(ctx context.Context) error
	Reload(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	ConnectionInfo(ctx context.Context) (ConnectionInfo, error)
}
