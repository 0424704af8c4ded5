package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxMatchesLimit is the hard ceiling on concurrent rooms.
const MaxMatchesLimit = 4

// Config is the whole server configuration.
type Config struct {
	Server struct {
		TCPAddr  string `yaml:"tcp_addr"`
		HTTPAddr string `yaml:"http_addr"`
	} `yaml:"server"`

	Game struct {
		MaxMatches int `yaml:"max_matches"`
	} `yaml:"game"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		// Addr enables event publishing, presence and history when set.
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret     string        `yaml:"jwt_secret"`
		TokenTTL      time.Duration `yaml:"token_ttl"`
		BcryptCost    int           `yaml:"bcrypt_cost"`
		AdminUser     string        `yaml:"admin_user"`
		AdminPassword string        `yaml:"admin_password"`
	} `yaml:"auth"`

	Telemetry struct {
		// Endpoint is the OTLP gRPC collector address. Empty disables export.
		Endpoint    string `yaml:"endpoint"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"telemetry"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.TCPAddr = ":9090"
	cfg.Server.HTTPAddr = ":8080"
	cfg.Game.MaxMatches = MaxMatchesLimit
	cfg.Database.Path = "./battleship.db"
	cfg.Auth.TokenTTL = 72 * time.Hour
	cfg.Auth.BcryptCost = 12
	cfg.Telemetry.ServiceName = "battleship"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads defaults, then the YAML file at path if given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"NAVAL_TCP_ADDR":              &c.Server.TCPAddr,
		"NAVAL_HTTP_ADDR":             &c.Server.HTTPAddr,
		"NAVAL_DB_PATH":               &c.Database.Path,
		"REDIS_CONNSTRING":            &c.Redis.Addr,
		"NAVAL_JWT_SECRET":            &c.Auth.JWTSecret,
		"NAVAL_ADMIN_USER":            &c.Auth.AdminUser,
		"NAVAL_ADMIN_PASSWORD":        &c.Auth.AdminPassword,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &c.Telemetry.Endpoint,
		"NAVAL_LOG_LEVEL":             &c.Log.Level,
		"NAVAL_LOG_FORMAT":            &c.Log.Format,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("NAVAL_MAX_MATCHES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NAVAL_MAX_MATCHES: %w", err)
		}
		c.Game.MaxMatches = n
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.TCPAddr == "" {
		errs = append(errs, errors.New("server.tcp_addr is required"))
	}
	if c.Game.MaxMatches < 1 || c.Game.MaxMatches > MaxMatchesLimit {
		errs = append(errs, fmt.Errorf("game.max_matches must be between 1 and %d", MaxMatchesLimit))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
