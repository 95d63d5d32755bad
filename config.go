package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// configFile is read from the working directory on startup.
const configFile = ".config.yaml"

type Config struct {
	Port      int            `yaml:"port"`
	Env       string         `yaml:"env"`
	Pepper    string         `yaml:"pepper"`
	HMACKey   string         `yaml:"hmac_key"`
	JWTSecret string         `yaml:"jwt_secret"`
	CSRFKey   string         `yaml:"csrf_key"`
	Log       LogConfig      `yaml:"log"`
	Database  DatabaseConfig `yaml:"database"`
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig selects and configures the database. Dialect is either
// "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Dialect  string `yaml:"dialect"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

func (dc DatabaseConfig) ConnectionInfo() string {
	if dc.Dialect == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dc.Path)
	}
	sslMode := dc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	if dc.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", dc.Host, dc.Port, dc.User, dc.Name, sslMode)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", dc.Host, dc.Port, dc.User, dc.Password, dc.Name, sslMode)
}

func DefaultConfig() Config {
	return Config{
		Port:      1111,
		Env:       "dev",
		Pepper:    "secret-random-string",
		HMACKey:   "secret-hmac-key",
		JWTSecret: "secret-jwt-key",
		CSRFKey:   "32-byte-long-auth-key-for-csrf!!",
		Log:       LogConfig{Level: "debug"},
		Database:  DefaultDatabaseConfig(),
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Dialect:  "postgres",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "",
		Name:     "minitter",
		SSLMode:  "disable",
		Path:     "minitter.db",
	}
}

// LoadConfig loads .config.yaml, falling back to DefaultConfig when there is none.
// If required is true (in production), a missing or invalid file is fatal.
func LoadConfig(required bool) Config {
	c, err := loadConfigFile(configFile, required)
	if err != nil {
		panic(err)
	}
	return c
}

func loadConfigFile(path string, required bool) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		log.Info().Msg("No config file found, using the default dev config")
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from the defaults, so that the file only needs to name what differs.
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	log.Info().Str("path", path).Msg("Successfully loaded config file")
	return c, nil
}

func (c Config) validate() error {
	switch c.Database.Dialect {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database dialect %q", c.Database.Dialect)
	}
	if c.CSRFKey != "" && len(c.CSRFKey) != 32 {
		return fmt.Errorf("csrf_key must be 32 bytes long, got %d", len(c.CSRFKey))
	}
	return nil
}
