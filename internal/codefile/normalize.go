package codefile

import (
	"regexp"
	"strings"
)

var (
	pipInstallPython = regexp.MustCompile(`^! ?pip install`)
	pipInstallShell  = regexp.MustCompile(`^pip install`)
)

// SilencePip rewrites pip install lines to carry the -qqq flag so package
// installation noise does not drown out program output. Languages without
// a pip convention pass through unchanged. Runs before filename
// derivation, so the rewrite participates in content addressing.
func SilencePip(code, lang string) string {
	var re *regexp.Regexp
	switch lang {
	case "python":
		re = pipInstallPython
	case "bash", "shell", "sh", "pwsh", "powershell", "ps1":
		re = pipInstallShell
	default:
		return code
	}

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		match := re.FindString(line)
		if match == "" || strings.Contains(line, "-qqq") {
			continue
		}
		lines[i] = strings.Replace(line, match, match+" -qqq", 1)
	}
	return strings.Join(lines, "\n")
}
