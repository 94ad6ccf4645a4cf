// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the daemon configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Device  DeviceConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds the on-disk layout.
type StorageConfig struct {
	// BasePath is the data directory; the other paths default under it.
	BasePath string
	// BookDBPath is the Badger bookmark database directory (default: {data}/bookdb).
	BookDBPath string
	// HistoryDBPath is the SQLite sync journal file (default: {data}/history.db).
	HistoryDBPath string
	// ProfilesPath is the YAML profile registry file (default: {data}/profiles.yaml).
	ProfilesPath string
}

// SyncConfig holds sync scheduling and transport configuration.
type SyncConfig struct {
	// Schedule is a cron expression or descriptor for periodic full syncs
	// (default: @hourly).
	Schedule string
	// RemoteTimeout bounds one annotation-service HTTP call (default: 30s).
	RemoteTimeout time.Duration
}

// DeviceConfig identifies this reader device in bookmark records.
type DeviceConfig struct {
	Name string
	// ID is generated when not configured.
	ID string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for bookmark data")
	bookDBPath := flag.String("bookdb-path", "", "Path to the bookmark database directory")
	historyPath := flag.String("history-path", "", "Path to the sync journal database")
	profilesPath := flag.String("profiles-path", "", "Path to the profile registry file")
	syncSchedule := flag.String("sync-schedule", "", "Periodic sync schedule (default: @hourly)")
	remoteTimeout := flag.String("remote-timeout", "", "Annotation service request timeout (default: 30s)")
	deviceName := flag.String("device-name", "", "Device name recorded on bookmarks")
	deviceID := flag.String("device-id", "", "Device id recorded on bookmarks (default: generated)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			BasePath:      getConfigValue(*dataPath, "DATA_PATH", ""),
			BookDBPath:    getConfigValue(*bookDBPath, "BOOKDB_PATH", ""),
			HistoryDBPath: getConfigValue(*historyPath, "HISTORY_PATH", ""),
			ProfilesPath:  getConfigValue(*profilesPath, "PROFILES_PATH", ""),
		},
		Sync: SyncConfig{
			Schedule: getConfigValue(*syncSchedule, "SYNC_SCHEDULE", "@hourly"),
		},
		Device: DeviceConfig{
			Name: getConfigValue(*deviceName, "DEVICE_NAME", "bookmarkd"),
			ID:   getConfigValue(*deviceID, "DEVICE_ID", ""),
		},
	}

	remoteTimeoutStr := getConfigValue(*remoteTimeout, "REMOTE_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(remoteTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remote timeout %q: %w", remoteTimeoutStr, err)
	}
	cfg.Sync.RemoteTimeout = timeout

	if err := cfg.expandStoragePaths(); err != nil {
		return nil, fmt.Errorf("invalid storage path: %w", err)
	}

	// Records need a stable-enough device identity even when none is
	// configured.
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.BasePath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Sync.RemoteTimeout <= 0 {
		return errors.New("remote timeout must be positive")
	}

	return nil
}

// expandStoragePaths expands ~ on the base path and fills in the per-store
// defaults underneath it.
func (c *Config) expandStoragePaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultBase := filepath.Join(homeDir, "ListenUp", "bookmarks")

	base, err := expandPath(c.Storage.BasePath, defaultBase)
	if err != nil {
		return err
	}
	c.Storage.BasePath = base

	c.Storage.BookDBPath, err = expandPath(c.Storage.BookDBPath, filepath.Join(base, "bookdb"))
	if err != nil {
		return err
	}
	c.Storage.HistoryDBPath, err = expandPath(c.Storage.HistoryDBPath, filepath.Join(base, "history.db"))
	if err != nil {
		return err
	}
	c.Storage.ProfilesPath, err = expandPath(c.Storage.ProfilesPath, filepath.Join(base, "profiles.yaml"))
	if err != nil {
		return err
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
