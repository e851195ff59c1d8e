// Package config loads the service configuration.
//
// Values are layered, lowest priority first: built-in defaults, the YAML files
// <config dir>/base.yaml and <config dir>/<environment>.yaml, the .env file and
// the process environment, and finally command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported environments.
const (
	EnvironmentLocal      = "local"
	EnvironmentProduction = "production"
)

// DatabaseConfig describes a PostgreSQL server when no DSN is given.
type DatabaseConfig struct {
	Username     string `yaml:"username" env:"DB_USERNAME"`
	Password     string `yaml:"password" env:"DB_PASSWORD"`
	Host         string `yaml:"host" env:"DB_HOST"`
	Port         int    `yaml:"port" env:"DB_PORT" validate:"omitempty,min=1,max=65535"`
	DatabaseName string `yaml:"database_name" env:"DB_NAME"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
}

// AvatarConfig configures avatar URL construction.
type AvatarConfig struct {
	BaseURL    string `yaml:"base_url" env:"AVATAR_BASE_URL" validate:"url"`
	DefaultImg string `yaml:"default_img" env:"AVATAR_DEFAULT_IMG"`
}

// TokenConfig configures one JWT class. Exp and MaxAge are in minutes.
type TokenConfig struct {
	Key    string `yaml:"key" env:"KEY" validate:"required,min=16"`
	Exp    int    `yaml:"exp" env:"EXP" validate:"min=1"`
	MaxAge int    `yaml:"maxage" env:"MAXAGE" validate:"min=1"`
}

// ExpDuration returns Exp as a duration.
func (t TokenConfig) ExpDuration() time.Duration {
	return time.Duration(t.Exp) * time.Minute
}

// MaxAgeDuration returns MaxAge as a duration.
func (t TokenConfig) MaxAgeDuration() time.Duration {
	return time.Duration(t.MaxAge) * time.Minute
}

// AuthConfig configures both JWT classes.
type AuthConfig struct {
	Access  TokenConfig `yaml:"access" envPrefix:"ACCESS_TOKEN_"`
	Refresh TokenConfig `yaml:"refresh" envPrefix:"REFRESH_TOKEN_"`
}

// Config is the complete service configuration.
type Config struct {
	RunAddr             string         `yaml:"server_address" env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel            string         `yaml:"log_level" env:"LOG_LEVEL" validate:"loglevel"`
	Environment         string         `yaml:"-" env:"APP_ENVIRONMENT" validate:"environment"`
	ConfigDir           string         `yaml:"-" env:"CONFIG_DIR"`
	DatabaseDSN         string         `yaml:"database_dsn" env:"DATABASE_DSN"`
	Database            DatabaseConfig `yaml:"database"`
	DBConnectionTimeout time.Duration  `yaml:"db_connection_timeout" env:"DB_CONNECTION_TIMEOUT"`
	DBMaxOpenConns      int            `yaml:"db_max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"min=0"`
	DBMaxIdleConns      int            `yaml:"db_max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"min=0"`
	DBFilePath          string         `yaml:"db_file_path" env:"DB_FILE_PATH" validate:"filepath"`
	Avatar              AvatarConfig   `yaml:"avatar"`
	Auth                AuthConfig     `yaml:"auth"`
	TrustedSubnet       string         `yaml:"trusted_subnet" env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	TrustProxyHeaders   bool           `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
	GRPCAddr            string         `yaml:"grpc_server_address" env:"GRPC_SERVER_ADDRESS" validate:"omitempty,hostname_port"`
	HealthCheckInterval time.Duration  `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL" validate:"min=0"`
	EnableGzip          bool           `yaml:"enable_gzip" env:"ENABLE_GZIP"`
	ShutdownTimeout     time.Duration  `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

var defaultConfig = Config{
	RunAddr:             "127.0.0.1:8000",
	LogLevel:            "info",
	Environment:         EnvironmentLocal,
	ConfigDir:           "configuration",
	DBConnectionTimeout: 20 * time.Second,
	DBMaxOpenConns:      10,
	DBMaxIdleConns:      5,
	Avatar: AvatarConfig{
		BaseURL:    "https://www.gravatar.com/avatar",
		DefaultImg: "identicon",
	},
	Auth: AuthConfig{
		Access: TokenConfig{
			Key:    "local-access-token-signing-key",
			Exp:    15,
			MaxAge: 60,
		},
		Refresh: TokenConfig{
			Key:    "local-refresh-token-signing-key",
			Exp:    60 * 24,
			MaxAge: 60 * 24,
		},
	},
	HealthCheckInterval: 10 * time.Second,
	EnableGzip:          true,
	ShutdownTimeout:     10 * time.Second,
}

// InitOption configures New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing skips command line parsing, which tests need.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

// New builds the configuration from all sources and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	flags := flag.NewFlagSet("students", flag.ContinueOnError)
	cli := registerFlags(flags, values)
	if !options.disableFlagsParsing {
		if err := flags.Parse(options.args); err != nil {
			return nil, err
		}
		cli.collect()
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	environment := firstNonEmpty(cli.set["e"], os.Getenv("APP_ENVIRONMENT"), values.Environment)
	configDir := firstNonEmpty(cli.set["c"], os.Getenv("CONFIG_DIR"), values.ConfigDir)

	for _, name := range []string{"base.yaml", environment + ".yaml"} {
		if err := values.loadYAML(filepath.Join(configDir, name)); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, err
	}

	cli.apply(values)

	if err := values.clarifyDatabaseDSN(); err != nil {
		return nil, err
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("in internal/config/config.go/loadYAML(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadYAML(): error while parsing %s: %w", path, err)
	}

	return nil
}

// clarifyDatabaseDSN builds a PostgreSQL URL from the database section
// when no explicit DSN was configured.
func (c *Config) clarifyDatabaseDSN() error {
	if c.DatabaseDSN != "" || c.Database.Host == "" {
		return nil
	}

	port := c.Database.Port
	if port == 0 {
		port = 5432
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.Username, c.Database.Password),
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database.DatabaseName,
	}
	if c.Database.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {c.Database.SSLMode}}.Encode()
	}
	c.DatabaseDSN = dsn.String()

	return nil
}

type cliValues struct {
	flags   *flag.FlagSet
	set     map[string]string
	setters map[string]func(*Config, string)
}

func registerFlags(flags *flag.FlagSet, values *Config) *cliValues {
	cli := &cliValues{
		flags: flags,
		set:   map[string]string{},
		setters: map[string]func(*Config, string){
			"a": func(c *Config, v string) { c.RunAddr = v },
			"l": func(c *Config, v string) { c.LogLevel = v },
			"e": func(c *Config, v string) { c.Environment = v },
			"c": func(c *Config, v string) { c.ConfigDir = v },
			"d": func(c *Config, v string) { c.DatabaseDSN = v },
			"f": func(c *Config, v string) { c.DBFilePath = v },
			"g": func(c *Config, v string) { c.GRPCAddr = v },
			"t": func(c *Config, v string) { c.TrustedSubnet = v },
		},
	}

	flags.StringVar(new(string), "a", values.RunAddr, "address and port to run server")
	flags.StringVar(new(string), "l", values.LogLevel, "logger level")
	flags.StringVar(new(string), "e", values.Environment, "environment: local or production")
	flags.StringVar(new(string), "c", values.ConfigDir, "directory with the YAML configuration files")
	flags.StringVar(new(string), "d", values.DatabaseDSN, "a string with the database connection details")
	flags.StringVar(new(string), "f", values.DBFilePath, "SQLite database file")
	flags.StringVar(new(string), "g", values.GRPCAddr, "address and port of the gRPC health server")
	flags.StringVar(new(string), "t", values.TrustedSubnet, "trusted subnet in CIDR notation")

	return cli
}

// collect remembers the flags given explicitly on the command line.
func (cli *cliValues) collect() {
	cli.flags.Visit(func(f *flag.Flag) {
		cli.set[f.Name] = f.Value.String()
	})
}

// apply copies every explicitly given flag onto values.
func (cli *cliValues) apply(values *Config) {
	for name, value := range cli.set {
		if setter, ok := cli.setters[name]; ok {
			setter(values, value)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func validateEnvironment(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	return value == EnvironmentLocal || value == EnvironmentProduction
}

func (c *Config) validate() error {
	validate := validator.New()

	customValidations := map[string]validator.Func{
		"loglevel":    validateLogLevel,
		"filepath":    validateFilePath,
		"environment": validateEnvironment,
	}
	for tag, fn := range customValidations {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Environment == EnvironmentProduction &&
		(c.Auth.Access.Key == defaultConfig.Auth.Access.Key || c.Auth.Refresh.Key == defaultConfig.Auth.Refresh.Key) {
		return errors.New("the default token signing keys must not be used in production")
	}

	return nil
}
