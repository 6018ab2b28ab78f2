// Package config loads the gateway configuration: listen address, provider
// definitions, pricing overrides, tool servers and credential storage. A
// single TOML file is the source of truth; a .env file and LLMGATE_*
// environment variables override it.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"llmgate/billing"
)

type ServerConfig struct {
	Listen string `toml:"listen"`
}

// ProviderConfig describes one configured upstream model endpoint.
type ProviderConfig struct {
	Brand     string `toml:"brand"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	APIKey    string `toml:"api_key"`

	// Built-in capabilities (OpenAI brand only).
	WebSearch      bool     `toml:"web_search"`
	FileSearch     bool     `toml:"file_search"`
	VectorStoreIDs []string `toml:"vector_store_ids"`
}

// ToolServerConfig describes one MCP tool server to attach at startup.
type ToolServerConfig struct {
	ID        string            `toml:"id"`
	Transport string            `toml:"transport"`
	URL       string            `toml:"url"`
	Headers   map[string]string `toml:"headers"`
	Command   string            `toml:"command"`
	Args      []string          `toml:"args"`
	Env       map[string]string `toml:"env"`
}

// DirectToolConfig describes a tool invoked over plain HTTP rather than MCP.
type DirectToolConfig struct {
	Name         string         `toml:"name"`
	Description  string         `toml:"description"`
	URL          string         `toml:"url"`
	Schema       map[string]any `toml:"schema"`
	AllowedUsers []string       `toml:"allowed_users"`
}

type SecurityConfig struct {
	CredentialStorage string `toml:"credential_storage"` // "plaintext" or "ssh_key"
	SSHKeyPath        string `toml:"ssh_key_path"`
}

type Config struct {
	Server        ServerConfig              `toml:"server"`
	DataDirectory string                    `toml:"data_directory"`
	SystemPrompt  string                    `toml:"system_prompt"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	ToolServers   []ToolServerConfig        `toml:"tool_servers"`
	DirectTools   []DirectToolConfig        `toml:"direct_tools"`
	Pricing       billing.PriceTable        `toml:"pricing"`
	Security      SecurityConfig            `toml:"security"`
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func CheckDebug() bool {
	debug := os.Getenv("LLMGATE_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens the debug log inside the data directory when
// LLMGATE_DEBUG is set. The file is 0600 since request payloads may land
// in it.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (LLMGATE_DEBUG=%s) ===", os.Getenv("LLMGATE_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

func defaults() *Config {
	return &Config{
		Server:        ServerConfig{Listen: ":8080"},
		DataDirectory: "~/.local/share/llmgate",
		Security:      SecurityConfig{CredentialStorage: "plaintext"},
	}
}

// Load reads the configuration from path. A missing file is not an error;
// defaults plus environment overrides apply. An existing .env file in the
// working directory is loaded first so both the TOML file and the overrides
// can reference its values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath()
	}
	if FileExists(path) {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolveAPIKeys()

	if cfg.Pricing == nil {
		cfg.Pricing = billing.DefaultPricing
	} else {
		// Configured pricing overlays the built-in table rather than
		// replacing it, so partial overrides keep sane defaults.
		merged := billing.PriceTable{}
		for brand, models := range billing.DefaultPricing {
			merged[brand] = models
		}
		for brand, models := range cfg.Pricing {
			if existing, ok := merged[brand]; ok {
				combined := map[string]billing.Rates{}
				for m, r := range existing {
					combined[m] = r
				}
				for m, r := range models {
					combined[m] = r
				}
				merged[brand] = combined
			} else {
				merged[brand] = models
			}
		}
		cfg.Pricing = merged
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if listen := os.Getenv("LLMGATE_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if dataDir := os.Getenv("LLMGATE_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

// resolveAPIKeys fills empty provider keys from <ID>_API_KEY environment
// variables, so secrets can stay out of the TOML file.
func (c *Config) resolveAPIKeys() {
	for id, p := range c.Providers {
		if p.APIKey != "" {
			continue
		}
		envName := strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_API_KEY"
		if key := os.Getenv(envName); key != "" {
			p.APIKey = key
			c.Providers[id] = p
		}
	}
}

// DefaultConfigPath returns the path of the TOML config file, honoring
// LLMGATE_CONFIG when set.
func DefaultConfigPath() string {
	if path := os.Getenv("LLMGATE_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(GetConfigDir(), "config.toml")
}
