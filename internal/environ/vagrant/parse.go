package vagrant

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"shellbox/internal/environ"
)

// parseStatus reads `vagrant status --machine-readable` output. Lines are
// CSV: timestamp,target,type,data. The state line for our machine carries
// the VM state in the data column.
func parseStatus(out, machine string) (environ.Status, error) {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 4 || parts[2] != "state" {
			continue
		}
		if parts[1] != "" && parts[1] != machine {
			continue
		}
		switch parts[3] {
		case "running":
			return environ.StatusRunning, nil
		case "not_created":
			return environ.StatusNotCreated, nil
		default:
			// poweroff, aborted, saved and friends all mean "exists
			// but is not usable yet".
			return environ.StatusStopped, nil
		}
	}
	return "", fmt.Errorf("vagrant: no state line in status output")
}

type sshConfig struct {
	host         string
	port         int
	user         string
	identityFile string
}

// parseSSHConfig reads `vagrant ssh-config` output, an ssh_config(5)
// fragment with one key/value pair per line.
func parseSSHConfig(out string) (sshConfig, error) {
	cfg := sshConfig{port: 22}

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// The value is the rest of the line, possibly quoted. Identity
		// file paths may contain spaces.
		value := strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, fields[0])), `"`)
		switch fields[0] {
		case "HostName":
			cfg.host = value
		case "User":
			cfg.user = value
		case "Port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return sshConfig{}, fmt.Errorf("vagrant: bad Port in ssh-config: %q", value)
			}
			cfg.port = port
		case "IdentityFile":
			cfg.identityFile = value
		}
	}
	if err := sc.Err(); err != nil {
		return sshConfig{}, fmt.Errorf("vagrant: scan ssh-config: %w", err)
	}
	if cfg.host == "" {
		return sshConfig{}, fmt.Errorf("vagrant: no HostName in ssh-config output")
	}
	return cfg, nil
}
