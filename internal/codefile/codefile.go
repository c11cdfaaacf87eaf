// Package codefile maps code blocks onto files in the working directory.
// A block is stored either under a name the author chose with a filename
// directive, or under a content-addressed name derived from the code
// itself.
package codefile

import (
	"crypto/md5"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// directivePrefix marks a first-line filename directive, e.g.
//
//	# filename: app.py
const directivePrefix = "# filename:"

// ErrOutsideWorkDir reports a directive whose path resolves outside the
// working directory.
var ErrOutsideWorkDir = errors.New("filename escapes the working directory")

// FromDirective inspects the first line of code for a filename directive
// and returns the named path relative to workDir. It returns "" and no
// error when the block carries no directive. Absolute directive paths are
// accepted as long as they still resolve inside workDir.
func FromDirective(code, workDir string) (string, error) {
	first := code
	if idx := strings.IndexByte(code, '\n'); idx >= 0 {
		first = code[:idx]
	}
	first = strings.TrimSpace(first)
	if !strings.HasPrefix(first, directivePrefix) {
		return "", nil
	}

	// Everything between the first and second colon is the filename.
	name := strings.TrimSpace(strings.Split(first, ":")[1])
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("codefile: resolve work dir: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("codefile: resolve directive path: %w", err)
	}
	rel, err := filepath.Rel(absWork, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideWorkDir
	}
	return rel, nil
}

// Derive returns the content-addressed filename for a code block: an md5
// digest of the code with the canonical language as the extension. Code
// must already be normalized, so identical blocks always map to the same
// name.
func Derive(code, lang string) string {
	return fmt.Sprintf("tmp_code_%x.%s", md5.Sum([]byte(code)), lang)
}
