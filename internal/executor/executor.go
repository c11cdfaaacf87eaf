package executor

import "context"

// CodeBlock is one unit of code in a batch, tagged with the language it
// was written in. Language names are matched case-insensitively and may
// use common aliases (py, js).
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Result is the aggregate outcome of a batch: concatenated per-block
// outputs, the exit code of the last block that ran, and the first file
// the batch persisted.
type Result struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
	// FirstFile is the absolute path of the first code file written
	// during the batch, "" when no block got that far.
	FirstFile string `json:"firstFile,omitempty"`
}

// CommandResult is what a remote command invocation produced.
type CommandResult struct {
	// Output is combined stdout and stderr, already trimmed to the
	// transport's tail window and carrying the timeout marker when the
	// command was killed by the remote timeout wrapper.
	Output   string
	ExitCode int
	TimedOut bool
}

// Transport moves files to the execution environment and runs commands in
// it. Implementations are expected to reuse one connection across calls.
type Transport interface {
	// Upload stages a local file into the environment under remotePath.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Run executes argv in the environment's shell and captures combined
	// output.
	Run(ctx context.Context, argv []string) (CommandResult, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}
