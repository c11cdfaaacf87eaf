// Package config handles environment variable loading for ports, paths,
// credentials, and the environment provider selection.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in the PROVIDER environment variable.
const (
	ProviderVagrant = "vagrant"
	ProviderDocker  = "docker"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// HTTP server port
	Port int

	// SQLite database file for run history
	DBPath string

	// Local directory code files are written to before upload
	WorkDir string

	// Remote directory files are uploaded to; empty means the SSH user's
	// home directory
	RemoteDir string

	// Per-command execution timeout
	ExecTimeout time.Duration

	// Execution policy overrides, e.g. EXEC_POLICIES="powershell=true,css=false"
	Policies map[string]bool

	// Which environment provider to boot: "vagrant" or "docker"
	Provider string

	// Vagrant provider settings
	VagrantDir     string
	VagrantMachine string

	// Docker provider settings
	DockerImage string

	// Auth: HMAC secret for JWTs and the bcrypt hash of the API key
	JWTSecret  string
	APIKeyHash string

	// Kafka intake; an empty broker list disables it
	KafkaBrokers     []string
	KafkaBatchTopic  string
	KafkaResultTopic string
	KafkaGroup       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/shellbox.db"
	}

	workDir := os.Getenv("WORK_DIR")
	if workDir == "" {
		workDir = "data/work"
	}

	execTimeout := 60 * time.Second
	if timeoutStr := os.Getenv("EXEC_TIMEOUT"); timeoutStr != "" {
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid EXEC_TIMEOUT: %w", err)
		}
		execTimeout = d
	}

	policies, err := parsePolicies(os.Getenv("EXEC_POLICIES"))
	if err != nil {
		return nil, err
	}

	provider := os.Getenv("PROVIDER")
	if provider == "" {
		provider = ProviderVagrant
	}
	if provider != ProviderVagrant && provider != ProviderDocker {
		return nil, fmt.Errorf("invalid PROVIDER %q: must be %q or %q", provider, ProviderVagrant, ProviderDocker)
	}

	vagrantDir := os.Getenv("VAGRANT_DIR")
	if vagrantDir == "" {
		vagrantDir = "."
	}

	vagrantMachine := os.Getenv("VAGRANT_MACHINE")
	if vagrantMachine == "" {
		vagrantMachine = "default"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	apiKeyHash := os.Getenv("API_KEY_HASH")
	if apiKeyHash == "" {
		return nil, fmt.Errorf("API_KEY_HASH is required (generate with the hash-key subcommand)")
	}

	var brokers []string
	if brokerStr := os.Getenv("KAFKA_BROKERS"); brokerStr != "" {
		for _, b := range strings.Split(brokerStr, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	batchTopic := os.Getenv("KAFKA_BATCH_TOPIC")
	if batchTopic == "" {
		batchTopic = "shellbox.batches"
	}

	resultTopic := os.Getenv("KAFKA_RESULT_TOPIC")
	if resultTopic == "" {
		resultTopic = "shellbox.results"
	}

	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "shellbox"
	}

	return &Config{
		Port:             port,
		DBPath:           dbPath,
		WorkDir:          workDir,
		RemoteDir:        os.Getenv("REMOTE_DIR"),
		ExecTimeout:      execTimeout,
		Policies:         policies,
		Provider:         provider,
		VagrantDir:       vagrantDir,
		VagrantMachine:   vagrantMachine,
		DockerImage:      os.Getenv("DOCKER_IMAGE"),
		JWTSecret:        jwtSecret,
		APIKeyHash:       apiKeyHash,
		KafkaBrokers:     brokers,
		KafkaBatchTopic:  batchTopic,
		KafkaResultTopic: resultTopic,
		KafkaGroup:       group,
	}, nil
}

// parsePolicies parses "lang=bool" pairs separated by commas.
// An empty input returns a nil map, which leaves the defaults untouched.
func parsePolicies(s string) (map[string]bool, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	policies := make(map[string]bool)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		lang, value, ok := strings.Cut(pair, "=")
		lang = strings.TrimSpace(lang)
		if !ok || lang == "" {
			return nil, fmt.Errorf("invalid EXEC_POLICIES entry %q: want lang=true|false", pair)
		}
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid EXEC_POLICIES entry %q: %w", pair, err)
		}
		policies[lang] = enabled
	}
	return policies, nil
}
