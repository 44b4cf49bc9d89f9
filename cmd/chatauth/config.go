package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/avorobev/chatauth/internal/logger"
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultStoreBackend = "sqlite"
	defaultStoreFile    = ".chatauth.db"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Chat backend base URL
	BaseURL string

	// Credential store backend: sqlite, valkey or memory
	StoreBackend string

	// Path to the sqlite credential store
	StorePath string

	// Valkey address, used when StoreBackend is valkey
	ValkeyAddr string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		BaseURL:      defaultBaseURL,
		StoreBackend: defaultStoreBackend,
		Environment:  defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"CHATAUTH_API_URL": setString(&c.BaseURL),
		"CHATAUTH_STORE":   setString(&c.StoreBackend),
		"CHATAUTH_DB_PATH": setString(&c.StorePath),
		"CHATAUTH_VALKEY":  setString(&c.ValkeyAddr),
		"LOG_LEVEL":        setString(&c.LogLevel),
		"ENVIRONMENT":      setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

// BindFlags registers config options on the given flag set.
// Cobra exposes pflag sets, so the same binding serves the CLI root command.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.BaseURL, "api-url", "u", c.BaseURL, "Chat backend base URL")
	fs.StringVarP(&c.StoreBackend, "store", "s", c.StoreBackend, "Credential store backend (sqlite, valkey, memory)")
	fs.StringVarP(&c.StorePath, "db-path", "d", c.StorePath, "Path to the sqlite credential store")
	fs.StringVar(&c.ValkeyAddr, "valkey-addr", c.ValkeyAddr, "Valkey address for the valkey store backend")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("chatauth", pflag.ContinueOnError)
	c.BindFlags(fs)
	return fs.Parse(args)
}

// ResolveStorePath returns the sqlite file location, defaulting to a dotfile
// in the user's home directory.
func (c *Config) ResolveStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, defaultStoreFile), nil
}
