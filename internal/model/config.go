package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Account describes one IMAP mailbox connection. It is read-only input:
// the pipeline never mutates or persists it.
type Account struct {
	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAP server port. When zero, a default is applied
	// based on the TLS flag (993 for TLS, 143 otherwise).
	Port int `mapstructure:"port" yaml:"port"`

	// TLS selects implicit TLS; plain connections upgrade via STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// User is the login username, also used as the account identity
	// on stored documents.
	User string `mapstructure:"user" yaml:"user"`

	// Secret is the login password. When empty it is resolved from the
	// OS keyring at startup.
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// Addr returns the host:port dial address for the account.
func (a Account) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ClassifierConfig holds settings for the external classification service.
type ClassifierConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NotifyConfig holds the notification sink endpoints. Either may be empty,
// which disables that sink.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url"`
	WebhookURL      string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// SyncConfig holds mailbox synchronization settings.
type SyncConfig struct {
	// Folder is the mailbox folder to synchronize.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// BackfillDays is how far back the startup range fetch reaches.
	BackfillDays int `mapstructure:"backfill_days" yaml:"backfill_days"`
}

// APIConfig holds the read-side HTTP server settings.
type APIConfig struct {
	Bind string `mapstructure:"bind" yaml:"bind"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger construction settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level process configuration.
type AppConfig struct {
	Accounts   []Account        `mapstructure:"accounts" yaml:"accounts"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	API        APIConfig        `mapstructure:"api" yaml:"api"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/onebox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "onebox", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Classifier: ClassifierConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 64,
		},
		Sync: SyncConfig{
			Folder:       "INBOX",
			BackfillDays: 30,
		},
		API: APIConfig{
			Bind: ":5070",
		},
		Storage: StorageConfig{
			Path: filepath.Join(".", "onebox.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("classifier.model", "claude-sonnet-4-20250514")
	v.SetDefault("classifier.max_tokens", 64)
	v.SetDefault("sync.folder", "INBOX")
	v.SetDefault("sync.backfill_days", 30)
	v.SetDefault("api.bind", ":5070")
	v.SetDefault("storage.path", filepath.Join(".", "onebox.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// ValidateAccounts checks required account fields and applies the default
// port where absent. The returned slice preserves configuration order and
// is treated as immutable for the process lifetime.
func ValidateAccounts(accounts []Account) ([]Account, error) {
	out := make([]Account, 0, len(accounts))
	for i, acc := range accounts {
		if acc.Host == "" {
			return nil, fmt.Errorf("account %d: host is required", i)
		}
		if acc.User == "" {
			return nil, fmt.Errorf("account %d: user is required", i)
		}
		if acc.Port == 0 {
			if acc.TLS {
				acc.Port = 993
			} else {
				acc.Port = 143
			}
		}
		out = append(out, acc)
	}
	return out, nil
}
