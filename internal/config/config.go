// Package config assembles runtime settings for both the directory server
// and the CLI client. Values are merged from, in increasing priority:
// built-in defaults, a JSON config file (pointed to by the CONFIG
// environment variable), environment variables, and command-line flags.
package config

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every setting used by the usrdir and usrdird binaries.
// The client reads APIBaseURL, RequestTimeout, CredentialsFile and
// LogLevel; the rest belongs to the server.
type Config struct {
	RunAddr               string        `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	APIBaseURL            string        `env:"API_BASE_URL" json:"api_base_url" validate:"url"`
	LogLevel              string        `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	DBFileName            string        `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DatabaseDSN           string        `env:"DATABASE_DSN" json:"database_dsn"`
	DBConnectionTimeout   time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"-"`
	MigrationsDir         string        `env:"MIGRATIONS_DIR" json:"migrations_dir"`
	CredentialsFile       string        `env:"CREDENTIALS_FILE" json:"credentials_file" validate:"filepath"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" json:"-"`
	TokenSigningSecretKey string        `env:"TOKEN_SIGNING_SECRET_KEY" json:"token_signing_secret_key"`
	TokenTTL              time.Duration `env:"TOKEN_TTL" json:"-"`
	TrustedSubnet         string        `env:"TRUSTED_SUBNET" json:"trusted_subnet"`
}

var defaultConfig = Config{
	RunAddr:               ":8080",
	APIBaseURL:            "http://localhost:8080/api",
	LogLevel:              "info",
	DBFileName:            "",
	DatabaseDSN:           "",
	DBConnectionTimeout:   10 * time.Second,
	MigrationsDir:         "cmd/usrdird/migrations",
	CredentialsFile:       "credentials.json",
	RequestTimeout:        10 * time.Second,
	TokenSigningSecretKey: "dXNyZGlyLWRldi1zaWduaW5nLWtleQ==",
	TokenTTL:              24 * time.Hour,
	TrustedSubnet:         "",
}

func applyDefaults(cfg *Config, defaults Config) {
	*cfg = defaults
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func (c *Config) loadJSONFile() error {
	configFileName := os.Getenv("CONFIG")
	if configFileName == "" {
		return nil
	}

	data, err := os.ReadFile(configFileName)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// InitOption customizes New behavior.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing disables command-line flag parsing.
// It is used in tests where os.Args carries the test binary's own flags.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds a Config from all configuration sources and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{}
	applyDefaults(cfg, defaultConfig)

	if err := cfg.loadJSONFile(); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if !options.disableFlagsParsing {
		flag.StringVar(&cfg.RunAddr, "a", cfg.RunAddr, "address and port to run the directory server")
		flag.StringVar(&cfg.APIBaseURL, "b", cfg.APIBaseURL, "base URL of the directory API consumed by the client")
		flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "logger level")
		flag.StringVar(&cfg.DBFileName, "f", cfg.DBFileName, "JSON file name with the users database")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database connection string")
		flag.StringVar(&cfg.MigrationsDir, "m", cfg.MigrationsDir, "directory with goose migrations")
		flag.StringVar(&cfg.CredentialsFile, "k", cfg.CredentialsFile, "file keeping the persisted credential record")
		flag.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "trusted subnet in CIDR notation for the internal stats endpoint")
		flag.Parse()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
