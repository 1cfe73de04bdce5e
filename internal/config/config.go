package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for relaydeck.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Upstream automation/messaging backend.
	APIBaseURL string `env:"API_BASE_URL"`
	SocketURL  string `env:"SOCKET_URL"`

	// Bearer token for the REST API. When set it is persisted to the state
	// store; when empty the stored token is used.
	APIToken string `env:"API_TOKEN"`

	// UserID is the room key joined on the push channel.
	UserID string `env:"USER_ID"`

	// ProgressEvent is the push event name carrying job progress.
	ProgressEvent string `env:"PROGRESS_EVENT" envDefault:"automation_progress"`

	JobPollInterval time.Duration `env:"JOB_POLL_INTERVAL" envDefault:"30s"`
	LoadingFloor    time.Duration `env:"LOADING_FLOOR" envDefault:"1s"`

	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectMin      time.Duration `env:"RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax      time.Duration `env:"RECONNECT_MAX" envDefault:"5s"`

	ConversationPageSize  int           `env:"CONVERSATION_PAGE_SIZE" envDefault:"20"`
	MessageResyncInterval time.Duration `env:"MESSAGE_RESYNC_INTERVAL" envDefault:"60s"`
	SendRefetchDelay      time.Duration `env:"SEND_REFETCH_DELAY" envDefault:"3s"`

	// Messaging session. Persisted to the state store when set.
	MessagingCredentials string `env:"MESSAGING_CREDENTIALS"`
	SelfID               string `env:"SELF_ID"`
	MailboxID            string `env:"MAILBOX_ID"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeys string `env:"MCP_API_KEYS"`

	StatePath string `env:"STATE_PATH"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file usually carries the API token.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}
		cfg.StatePath = path
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}

	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL must be an http or https URL")
	}

	if c.SocketURL == "" {
		return fmt.Errorf("SOCKET_URL is required")
	}

	if u, err := url.Parse(c.SocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("SOCKET_URL must be a ws or wss URL")
	}

	if c.UserID == "" {
		return fmt.Errorf("USER_ID is required")
	}

	if c.ReconnectAttempts < 1 {
		return fmt.Errorf("RECONNECT_ATTEMPTS must be at least 1")
	}

	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("RECONNECT_MIN must be positive and not exceed RECONNECT_MAX")
	}

	if c.ConversationPageSize < 1 {
		return fmt.Errorf("CONVERSATION_PAGE_SIZE must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"JOB_POLL_INTERVAL":       c.JobPollInterval,
		"MESSAGE_RESYNC_INTERVAL": c.MessageResyncInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

// DefaultStatePath returns ~/.relaydeck/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".relaydeck", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MessagingEnabled reports whether enough of the messaging session is
// configured to run the conversation store.
func (c *Config) MessagingEnabled() bool {
	return c.MessagingCredentials != "" && c.SelfID != ""
}

const (
	// apiKeyMinLen is the minimum length for MCP API keys.
	apiKeyMinLen = 16
)

// APIKeyEntry holds a pre-configured API key and the user it belongs to.
type APIKeyEntry struct {
	UserID string
	Key    string
}

// ParseMCPAPIKeys parses the MCP_API_KEYS string.
// Format: "user1:key1,user2:key2"
func (c *Config) ParseMCPAPIKeys() ([]APIKeyEntry, error) {
	if c.MCPAPIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})
	seenKeys := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.MCPAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		userID, key, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if len(key) < apiKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(entries)+1, apiKeyMinLen)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEYS", userID)
		}

		if _, dup := seenKeys[key]; dup {
			return nil, fmt.Errorf("duplicate key in entry %d", len(entries)+1)
		}

		seenUsers[userID] = struct{}{}
		seenKeys[key] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Key: key})
	}

	return entries, nil
}
