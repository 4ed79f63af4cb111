package config

import (
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Remote    RemoteConfig
	Generator GeneratorConfig
	Sync      SyncConfig
	Log       LogConfig
	User      UserConfig
}

type ServerConfig struct {
	Port      int
	MCPPort   int
	StorePort int
}

type StorageConfig struct {
	DataDir string
}

// RemoteConfig points the sync coordinator at the profile store service.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
}

// GeneratorConfig points the refill worker at the content-generation service.
type GeneratorConfig struct {
	BaseURL string
	APIKey  string
}

type SyncConfig struct {
	Interval string // Go duration string, e.g. "5m"
}

type LogConfig struct {
	Level string
}

type UserConfig struct {
	ID string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:      4600,
			MCPPort:   4601,
			StorePort: 4602,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Remote: RemoteConfig{
			BaseURL: "http://localhost:4602",
		},
		Generator: GeneratorConfig{
			BaseURL: "http://localhost:4700",
		},
		Sync: SyncConfig{
			Interval: "5m",
		},
		Log: LogConfig{
			Level: "info",
		},
		User: UserConfig{
			ID: "local",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.quizfeed.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/quizfeed/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (QUIZFEED_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform keychain for secrets still unset. Both services may
	// legitimately run unauthenticated, so absence is not an error.
	if cfg.Remote.APIKey == "" {
		if key, err := kc.Get("quizfeed", "remote_api_key"); err == nil && key != "" {
			cfg.Remote.APIKey = key
		}
	}
	if cfg.Generator.APIKey == "" {
		if key, err := kc.Get("quizfeed", "generator_api_key"); err == nil && key != "" {
			cfg.Generator.APIKey = key
		}
	}

	return cfg, nil
}

// SyncInterval parses the configured sync interval, falling back to the
// default on garbage.
func (c Config) SyncInterval() time.Duration {
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
