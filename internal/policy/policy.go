// Package policy decides how a code block's language is handled: whether
// the language is recognized at all, whether blocks in it are executed or
// only saved to disk, and which interpreter runs them.
package policy

import "strings"

// defaultPolicy is the built-in execute/save decision per canonical
// language. Languages absent from this map are unrecognized, which is a
// stronger condition than "save only": unrecognized languages abort the
// batch.
var defaultPolicy = map[string]bool{
	"bash":       true,
	"shell":      true,
	"sh":         true,
	"pwsh":       true,
	"powershell": false,
	"ps1":        true,
	"python":     true,
	"javascript": true,
	"html":       false,
	"css":        false,
}

// aliases maps common shorthand names onto canonical ones.
var aliases = map[string]string{
	"py": "python",
	"js": "javascript",
}

// Canonical lowercases lang and resolves shorthand aliases. The result is
// the name used for policy lookups, file extensions, and interpreter
// selection.
func Canonical(lang string) string {
	lower := strings.ToLower(lang)
	if canonical, ok := aliases[lower]; ok {
		return canonical
	}
	return lower
}

// Decision is the outcome of resolving a language against a Table.
type Decision struct {
	Language   string // canonical name
	Recognized bool   // known to the default policy at all
	Execute    bool   // run the block (false means save only)
}

// Table is an execution policy table: the built-in defaults with optional
// per-language overrides applied. Overrides can flip execute decisions but
// cannot make an unknown language recognized.
type Table struct {
	policies map[string]bool
}

// NewTable builds a Table from the defaults plus overrides. Override keys
// are canonicalized, so {"PY": false} disables python execution.
func NewTable(overrides map[string]bool) *Table {
	merged := make(map[string]bool, len(defaultPolicy)+len(overrides))
	for lang, execute := range defaultPolicy {
		merged[lang] = execute
	}
	for lang, execute := range overrides {
		merged[Canonical(lang)] = execute
	}
	return &Table{policies: merged}
}

// Resolve canonicalizes lang and looks it up. An unrecognized language
// yields Recognized=false and Execute=false regardless of overrides.
func (t *Table) Resolve(lang string) Decision {
	canonical := Canonical(lang)
	if _, known := defaultPolicy[canonical]; !known {
		return Decision{Language: canonical}
	}
	return Decision{
		Language:   canonical,
		Recognized: true,
		Execute:    t.policies[canonical],
	}
}

// Command returns the interpreter program for a canonical language, the
// program that runs a saved file of that language on the remote host.
// Unrecognized languages return "".
func Command(lang string) string {
	switch {
	case lang == "python":
		return "python"
	case strings.HasPrefix(lang, "python"), lang == "bash", lang == "sh":
		return lang
	case lang == "shell":
		return "sh"
	case lang == "ps1", lang == "pwsh", lang == "powershell":
		return "pwsh"
	case lang == "javascript":
		return "node"
	default:
		return ""
	}
}
