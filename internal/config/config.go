package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PHOTOVAULT"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = "sqlite"
	defaultDatabasePath       = "photovault.db"
	defaultLogLevel           = "info"
	defaultCookieName         = "photovault_session"
	defaultTokenTTLMinutes    = 12 * 60
	defaultAutoLockMinutes    = 10
	defaultMediaFolder        = "vault"
	defaultMediaRegion        = "us-east-1"
	defaultSignedURLTTLMinute = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	SecureCookies  bool

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel string

	SigningSecret string
	TokenTTL      time.Duration
	CookieName    string
	Whitelist     []string

	EncryptionSecret string
	AutoLockWindow   time.Duration

	Media MediaConfig

	SentryDSN string
}

// MediaConfig describes the S3-compatible object store and its CDN.
type MediaConfig struct {
	Bucket             string
	Region             string
	Endpoint           string
	AccessKey          string
	SecretKey          string
	URLEndpoint        string
	Folder             string
	ThumbnailTransform string
	SignedURLTTL       time.Duration
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
	configViper.SetDefault("http.allowed_origins", "")
	configViper.SetDefault("http.secure_cookies", true)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.whitelist", "")
	configViper.SetDefault("autolock.timeout_minutes", defaultAutoLockMinutes)
	configViper.SetDefault("media.region", defaultMediaRegion)
	configViper.SetDefault("media.folder", defaultMediaFolder)
	configViper.SetDefault("media.thumbnail_transform", "w-400,h-400")
	configViper.SetDefault("media.signed_url_ttl_minutes", defaultSignedURLTTLMinute)
	configViper.SetDefault("sentry.dsn", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		AllowedOrigins:   splitList(configViper.GetString("http.allowed_origins")),
		SecureCookies:    configViper.GetBool("http.secure_cookies"),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:     configViper.GetString("database.path"),
		DatabaseDSN:      configViper.GetString("database.dsn"),
		LogLevel:         configViper.GetString("log.level"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTL:         time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CookieName:       configViper.GetString("auth.cookie_name"),
		Whitelist:        splitList(configViper.GetString("auth.whitelist")),
		EncryptionSecret: configViper.GetString("encryption.secret"),
		AutoLockWindow:   time.Duration(configViper.GetInt("autolock.timeout_minutes")) * time.Minute,
		Media: MediaConfig{
			Bucket:             configViper.GetString("media.bucket"),
			Region:             configViper.GetString("media.region"),
			Endpoint:           configViper.GetString("media.endpoint"),
			AccessKey:          configViper.GetString("media.access_key"),
			SecretKey:          configViper.GetString("media.secret_key"),
			URLEndpoint:        configViper.GetString("media.url_endpoint"),
			Folder:             configViper.GetString("media.folder"),
			ThumbnailTransform: configViper.GetString("media.thumbnail_transform"),
			SignedURLTTL:       time.Duration(configViper.GetInt("media.signed_url_ttl_minutes")) * time.Minute,
		},
		SentryDSN: configViper.GetString("sentry.dsn"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.EncryptionSecret) == "" {
		return fmt.Errorf("encryption.secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.AutoLockWindow <= 0 {
		return fmt.Errorf("autolock.timeout_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.Media.Bucket) == "" {
		return fmt.Errorf("media.bucket is required")
	}
	if strings.TrimSpace(c.Media.URLEndpoint) == "" {
		return fmt.Errorf("media.url_endpoint is required")
	}
	if c.Media.SignedURLTTL <= 0 {
		return fmt.Errorf("media.signed_url_ttl_minutes must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
