package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "LIBRARIUM"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "librarium.db"
	defaultLogLevel       = "info"
	defaultEnvironment    = "development"
	defaultCookieName     = "librarium_session"
	defaultSessionTTL     = 24 * time.Hour
	defaultBcryptCost     = 10
	defaultGitHubCallback = "http://localhost:8080/auth/github/callback"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	Environment        string
	DatabasePath       string
	LogLevel           string
	SessionSecret      string
	SessionCookieName  string
	SessionTTL         time.Duration
	BcryptCost         int
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("environment", defaultEnvironment)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_hours", int(defaultSessionTTL.Hours()))
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("github.callback_url", defaultGitHubCallback)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		Environment:        strings.ToLower(strings.TrimSpace(configViper.GetString("environment"))),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		SessionSecret:      configViper.GetString("session.secret"),
		SessionCookieName:  configViper.GetString("session.cookie_name"),
		SessionTTL:         time.Duration(configViper.GetInt("session.ttl_hours")) * time.Hour,
		BcryptCost:         configViper.GetInt("auth.bcrypt_cost"),
		GitHubClientID:     configViper.GetString("github.client_id"),
		GitHubClientSecret: configViper.GetString("github.client_secret"),
		GitHubCallbackURL:  configViper.GetString("github.callback_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with the production cookie policy.
func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.GitHubClientID) == "" {
		return fmt.Errorf("github.client_id is required")
	}
	if strings.TrimSpace(c.GitHubClientSecret) == "" {
		return fmt.Errorf("github.client_secret is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_hours must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost out of range")
	}
	return nil
}
