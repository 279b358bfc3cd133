package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/norichat/norichat/pkg/protocol"
)

// Config is the server configuration, loadable from a TOML file. Command-line
// flags override file values.
type Config struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
	Auth   AuthSection   `toml:"auth"`
}

type ServerSection struct {
	Port         int    `toml:"port"`
	DatabasePath string `toml:"database_path"`
	JWTSecret    string `toml:"jwt_secret"`
}

type LimitsSection struct {
	// MaxFrameBytes caps one inbound logical message.
	MaxFrameBytes int `toml:"max_frame_bytes"`
	// MaxQueueBytes caps a session's cumulative pending outbound payload.
	MaxQueueBytes int `toml:"max_queue_bytes"`
	// HistoryDefaultLimit and HistoryMaxLimit bound /api/messages.
	HistoryDefaultLimit int `toml:"history_default_limit"`
	HistoryMaxLimit     int `toml:"history_max_limit"`
}

type AuthSection struct {
	// PasswordScheme selects the hash for newly stored passwords:
	// "sha256" or "argon2id". Existing hashes verify under either.
	PasswordScheme string `toml:"password_scheme"`
	TokenTTLHours  int    `toml:"token_ttl_hours"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerSection{
			Port:         8080,
			DatabasePath: "norichat.db",
			JWTSecret:    "norichat_secret_CHANGE_ME_in_production",
		},
		Limits: LimitsSection{
			MaxFrameBytes:       protocol.MaxFrameBytes,
			MaxQueueBytes:       protocol.MaxQueueBytes,
			HistoryDefaultLimit: 50,
			HistoryMaxLimit:     200,
		},
		Auth: AuthSection{
			PasswordScheme: "sha256",
			TokenTTLHours:  7 * 24,
		},
	}
}

// LoadConfig loads configuration from a TOML file. A missing file is
// populated with the defaults so operators have something to edit.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Not being able to write the template is not fatal.
			return config, nil
		}
		return config, nil
	}

	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func writeDefaultConfig(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# NoriChat server configuration
# This file was auto-generated with default values.
# Edit as needed and restart the server for changes to take effect.

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
