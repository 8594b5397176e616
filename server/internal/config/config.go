package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole server configuration, loaded once at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Probes   ProbesConfig   `yaml:"probes"`
	Hub      HubConfig      `yaml:"hub"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Logging  LoggingConfig  `yaml:"logging"`
	Paths    PathsConfig    `yaml:"paths"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the persistence backend. An empty DSN keeps the
// in-memory stores, which is the local development default.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig lists the known users with their bearer tokens. Tokens are
// static for now; swapping in a real identity provider only replaces the
// auth.Authenticator implementation.
type AuthConfig struct {
	Users []AuthUser `yaml:"users"`
}

type AuthUser struct {
	Token  string `yaml:"token"`
	ID     string `yaml:"id"`
	Email  string `yaml:"email"`
	Prenom string `yaml:"prenom"`
	Nom    string `yaml:"nom"`
	Role   string `yaml:"role"`
	Actif  bool   `yaml:"actif"`
}

type ProbesConfig struct {
	NetworkTimeout  time.Duration `yaml:"network_timeout"`
	ServiceTimeout  time.Duration `yaml:"service_timeout"`
	SecurityTimeout time.Duration `yaml:"security_timeout"`
}

type HubConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SMTPConfig drives the outgoing mailer. Disabled (the default) swaps in
// the no-op notifier, so mail never blocks local runs.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PathsConfig struct {
	Catalog string `yaml:"catalog"`
}

// Load reads the YAML file at path, applies environment overrides for the
// secrets, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Secrets come from the environment when present, never the other way
	// around: a value in the file is only a local-dev convenience.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if pw := os.Getenv("SMTP_PASSWORD"); pw != "" {
		cfg.SMTP.Password = pw
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Probes.NetworkTimeout == 0 {
		c.Probes.NetworkTimeout = 5 * time.Second
	}
	if c.Probes.ServiceTimeout == 0 {
		c.Probes.ServiceTimeout = 10 * time.Second
	}
	if c.Probes.SecurityTimeout == 0 {
		c.Probes.SecurityTimeout = 15 * time.Second
	}
	if c.Hub.PingInterval == 0 {
		c.Hub.PingInterval = 30 * time.Second
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the pieces that cannot fail later with a clearer error.
func (c *Config) Validate() error {
	if c.Paths.Catalog == "" {
		return fmt.Errorf("catalog path is required")
	}
	if len(c.Auth.Users) == 0 {
		return fmt.Errorf("at least one auth user is required")
	}
	seen := make(map[string]bool, len(c.Auth.Users))
	for _, u := range c.Auth.Users {
		if u.Token == "" || u.ID == "" || u.Email == "" {
			return fmt.Errorf("auth user %q: token, id and email are required", u.Email)
		}
		if seen[u.Token] {
			return fmt.Errorf("auth user %q: duplicate token", u.Email)
		}
		seen[u.Token] = true
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return fmt.Errorf("smtp enabled but host or from address missing")
		}
	}
	return nil
}
