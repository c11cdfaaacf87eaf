package dockervm

// Config holds the configuration for the sandbox container.
type Config struct {
	// Image is the sshd-equipped image to run. It must honor the
	// PUBLIC_KEY and USER_NAME environment variables and listen on 2222.
	Image string
	// Name is the container name. Empty generates a unique one.
	Name string
	// User is the account created inside the container.
	User string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
}

// DefaultConfig provides sensible defaults for an SSH-reachable sandbox.
func DefaultConfig() Config {
	return Config{
		Image: "lscr.io/linuxserver/openssh-server:latest",
		User:  "sandbox",
		// 512 MB memory limit
		MemoryLimit: 512 * 1024 * 1024,
		// a full CPU, code batches are bursty
		CPULimit: 1.0,
	}
}
