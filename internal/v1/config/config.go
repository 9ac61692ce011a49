package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration shared by the chatnet
// binaries. Command-line flags take precedence over these values; the
// environment supplies defaults so deployments can omit most flags.
type Config struct {
	// Service ports
	CRSPort string
	SNSPort string

	// Where the social-network service keeps server.dat and the per-user files
	SNSDataDir string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	DevelopmentMode bool
	AllowedOrigins  string

	// Operational HTTP listener for the chat-room server (prometheus scrape)
	MetricsEnabled bool
	MetricsAddr    string
}

// ValidateEnv validates the environment variables and returns a Config object.
// Returns an error if any set variable is invalid. Unset variables fall back
// to defaults; the ports are only required via flags, not the environment.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: CRS_PORT (valid port number when set)
	cfg.CRSPort = os.Getenv("CRS_PORT")
	if cfg.CRSPort != "" && !isValidPort(cfg.CRSPort) {
		errors = append(errors, fmt.Sprintf("CRS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.CRSPort))
	}

	// Optional: SNS_PORT (defaults to 3010)
	cfg.SNSPort = getEnvOrDefault("SNS_PORT", "3010")
	if !isValidPort(cfg.SNSPort) {
		errors = append(errors, fmt.Sprintf("SNS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.SNSPort))
	}

	// Optional: SNS_DATA_DIR (defaults to the working directory)
	cfg.SNSDataDir = getEnvOrDefault("SNS_DATA_DIR", ".")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Metrics listener for crsd; snsd always serves /metrics on its own port
	cfg.MetricsEnabled = os.Getenv("METRICS_ENABLED") == "true"
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9100")
	if cfg.MetricsEnabled && !isValidListenAddr(cfg.MetricsAddr) {
		errors = append(errors, fmt.Sprintf("METRICS_ADDR must be in format '[host]:port' (got '%s')", cfg.MetricsAddr))
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return cfg, nil
}

// isValidPort checks that a string is a port number in 1..65535
func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// isValidListenAddr checks a "[host]:port" listen address; the host may be empty
func isValidListenAddr(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return false
	}
	return isValidPort(addr[idx+1:])
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
