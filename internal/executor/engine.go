package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shellbox/internal/apperror"
	"shellbox/internal/codefile"
	"shellbox/internal/policy"
)

// Config holds the construction-time settings of an Engine.
type Config struct {
	// WorkDir is the local directory code files are written to. Created
	// if missing.
	WorkDir string

	// Timeout bounds each block's remote run. Must be at least one
	// second; it is enforced by the environment's timeout wrapper, so
	// a wedged command cannot hang the batch.
	Timeout time.Duration

	// RemoteDir is where files land in the environment. Empty means the
	// SSH user's home directory.
	RemoteDir string

	// Policies overrides the default execute/save decisions per
	// language.
	Policies map[string]bool
}

// Engine runs batches of code blocks in the execution environment: each
// block is normalized, written to the work dir, uploaded, and run under
// the remote timeout wrapper. The batch stops at the first block that
// fails; in-batch failures are reported in the Result, not as errors.
type Engine struct {
	cfg       Config
	table     *policy.Table
	transport Transport
	logger    *slog.Logger
}

// NewEngine validates cfg, creates the work dir, and wires the transport.
func NewEngine(cfg Config, transport Transport, logger *slog.Logger) (*Engine, error) {
	if cfg.Timeout < time.Second {
		return nil, apperror.Config("timeout", "timeout must be at least 1 second")
	}
	if cfg.WorkDir == "" {
		return nil, apperror.Config("workDir", "work dir is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, apperror.Config("workDir", fmt.Sprintf("create work dir: %v", err))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		table:     policy.NewTable(cfg.Policies),
		transport: transport,
		logger:    logger,
	}, nil
}

// Execute runs blocks in order and returns the aggregate Result. An error
// return means the batch never ran (empty batch or a canceled context);
// everything that happens to an individual block, including unsupported
// languages, bad filename directives, and nonzero exits, lands in the
// Result instead.
func (e *Engine) Execute(ctx context.Context, blocks []CodeBlock) (*Result, error) {
	if len(blocks) == 0 {
		return nil, apperror.EmptyBatch()
	}

	var outputs strings.Builder
	var firstFile string
	exitCode := 0

	for i, block := range blocks {
		decision := e.table.Resolve(block.Language)
		if !decision.Recognized {
			fmt.Fprintf(&outputs, "Unsupported language %s\n", decision.Language)
			exitCode = 1
			break
		}
		lang := decision.Language
		code := codefile.SilencePip(block.Code, lang)

		name, err := codefile.FromDirective(code, e.cfg.WorkDir)
		if err != nil {
			outputs.WriteString("Filename is not in the workspace")
			exitCode = 1
			break
		}
		if name == "" {
			name = codefile.Derive(code, lang)
		}

		localPath := filepath.Join(e.cfg.WorkDir, name)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			fmt.Fprintf(&outputs, "failed to save code: %v\n", err)
			exitCode = 1
			break
		}
		if err := os.WriteFile(localPath, []byte(code), 0o644); err != nil {
			fmt.Fprintf(&outputs, "failed to save code: %v\n", err)
			exitCode = 1
			break
		}
		if firstFile == "" {
			firstFile = localPath
		}

		if !decision.Execute {
			fmt.Fprintf(&outputs, "Code saved to %s\n", localPath)
			continue
		}

		remotePath := filepath.ToSlash(name)
		if e.cfg.RemoteDir != "" {
			remotePath = path.Join(e.cfg.RemoteDir, remotePath)
		}
		if err := e.transport.Upload(ctx, localPath, remotePath); err != nil {
			fmt.Fprintf(&outputs, "upload failed: %v\n", err)
			exitCode = 1
			break
		}

		argv := []string{"timeout", strconv.Itoa(e.timeoutSeconds()), policy.Command(lang), remotePath}
		e.logger.Debug("executing code block",
			slog.Int("block", i),
			slog.String("language", lang),
			slog.String("file", name))

		res, err := e.transport.Run(ctx, argv)
		if err != nil {
			fmt.Fprintf(&outputs, "remote execution failed: %v\n", err)
			exitCode = 1
			break
		}

		outputs.WriteString(res.Output)
		exitCode = res.ExitCode
		if exitCode != 0 {
			break
		}
	}

	return &Result{
		ExitCode:  exitCode,
		Output:    outputs.String(),
		FirstFile: firstFile,
	}, nil
}

func (e *Engine) timeoutSeconds() int {
	return int(e.cfg.Timeout / time.Second)
}
