package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from an optional YAML
// file and SPLITHAUS_* environment variables.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Invites     InvitesConfig     `mapstructure:"invites"`
	Email       EmailConfig       `mapstructure:"email"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	IntegrationID string        `mapstructure:"integration_id"`
	IframeID      string        `mapstructure:"iframe_id"`
	HMACSecret    string        `mapstructure:"hmac_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type InvitesConfig struct {
	Expiry  time.Duration `mapstructure:"expiry"`
	MaxUses int           `mapstructure:"max_uses"`
	BaseURL string        `mapstructure:"base_url"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MaintenanceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from the given file (optional) and the
// environment. Environment variables use the SPLITHAUS_ prefix with sections
// joined by underscores, e.g. SPLITHAUS_GATEWAY_API_KEY.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/splithaus.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "splithaus")
	v.SetDefault("auth.access_token_ttl", "24h")
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.integration_id", "")
	v.SetDefault("gateway.iframe_id", "")
	v.SetDefault("gateway.hmac_secret", "")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("invites.expiry", "168h")
	v.SetDefault("invites.max_uses", 1)
	v.SetDefault("invites.base_url", "")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("maintenance.enabled", true)

	v.SetEnvPrefix("SPLITHAUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate fails fast on missing credentials so the process never starts in a
// state where checkout or webhook verification silently cannot work.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		missing = append(missing, "gateway.base_url")
	}
	if strings.TrimSpace(c.Gateway.APIKey) == "" {
		missing = append(missing, "gateway.api_key")
	}
	if strings.TrimSpace(c.Gateway.IntegrationID) == "" {
		missing = append(missing, "gateway.integration_id")
	}
	if strings.TrimSpace(c.Gateway.IframeID) == "" {
		missing = append(missing, "gateway.iframe_id")
	}
	if strings.TrimSpace(c.Gateway.HMACSecret) == "" {
		missing = append(missing, "gateway.hmac_secret")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}
