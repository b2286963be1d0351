package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddr              string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel             string        `env:"LOG_LEVEL" validate:"loglevel"`
	LogFile              string        `env:"LOG_FILE" validate:"omitempty,filepath"`
	DBFileName           string        `env:"FILE_STORAGE_PATH" validate:"omitempty,filepath"`
	DatabaseDSN          string        `env:"DATABASE_DSN"`
	DBConnectionTimeout  time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir        string        `env:"MIGRATIONS_DIR"`
	JWTSecretKey         string        `env:"JWT_SECRET_KEY" validate:"required"`
	TokenTTL             time.Duration `env:"TOKEN_TTL"`
	UsernameSuffix       string        `env:"USERNAME_SUFFIX" validate:"emailsuffix"`
	PricingBaseURL       string        `env:"PRICING_BASE_URL" validate:"omitempty,url"`
	PricingTimeout       time.Duration `env:"PRICING_TIMEOUT"`
	PricingCacheTTL      time.Duration `env:"PRICING_CACHE_TTL"`
	TrustedSubnet        string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	BcryptCost           int           `env:"BCRYPT_COST" validate:"min=4,max=31"`
	PurgeChannelCapacity int           `env:"PURGE_CHANNEL_CAPACITY" validate:"min=1"`
	PurgeInterval        time.Duration `env:"PURGE_INTERVAL"`
	CORSAllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	ConfigFile           string        `env:"CONFIG"`
}

// fileConfig mirrors Config for the JSON config file. Durations are written
// as strings like "5s".
type fileConfig struct {
	RunAddr              string   `json:"server_address"`
	LogLevel             string   `json:"log_level"`
	LogFile              string   `json:"log_file"`
	DBFileName           string   `json:"file_storage_path"`
	DatabaseDSN          string   `json:"database_dsn"`
	DBConnectionTimeout  string   `json:"db_connection_timeout"`
	MigrationsDir        string   `json:"migrations_dir"`
	JWTSecretKey         string   `json:"jwt_secret_key"`
	TokenTTL             string   `json:"token_ttl"`
	UsernameSuffix       string   `json:"username_suffix"`
	PricingBaseURL       string   `json:"pricing_base_url"`
	PricingTimeout       string   `json:"pricing_timeout"`
	PricingCacheTTL      string   `json:"pricing_cache_ttl"`
	TrustedSubnet        string   `json:"trusted_subnet"`
	BcryptCost           int      `json:"bcrypt_cost"`
	PurgeChannelCapacity int      `json:"purge_channel_capacity"`
	PurgeInterval        string   `json:"purge_interval"`
	CORSAllowedOrigins   []string `json:"cors_allowed_origins"`
}

var defaultConfig = Config{
	RunAddr:              ":5005",
	LogLevel:             "info",
	DBConnectionTimeout:  10 * time.Second,
	MigrationsDir:        "migrations",
	TokenTTL:             time.Hour,
	UsernameSuffix:       "@gmail.com",
	PricingTimeout:       5 * time.Second,
	PricingCacheTTL:      30 * time.Second,
	BcryptCost:           10,
	PurgeChannelCapacity: 100,
	PurgeInterval:        2 * time.Second,
	CORSAllowedOrigins:   []string{"*"},
}

var allowedLogLevels = map[string]bool{
	"debug":  true,
	"info":   true,
	"warn":   true,
	"error":  true,
	"dpanic": true,
	"panic":  true,
	"fatal":  true,
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	return allowedLogLevels[fieldLevel.Field().String()]
}

func validateEmailSuffix(fieldLevel validator.FieldLevel) bool {
	return strings.HasPrefix(fieldLevel.Field().String(), "@")
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

	err = validate.RegisterValidation("emailsuffix", validateEmailSuffix)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

// applyDefaults copies every field of defaults into values where values
// still holds the zero value.
func applyDefaults(values *Config, defaults Config) {
	target := reflect.ValueOf(values).Elem()
	source := reflect.ValueOf(defaults)

	for i := 0; i < target.NumField(); i++ {
		field := target.Field(i)
		if field.IsZero() {
			field.Set(source.Field(i))
		}
	}
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	return time.ParseDuration(value)
}

func loadFromFile(fileName string) (Config, error) {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return Config{}, fmt.Errorf("in config.loadFromFile(): error while reading %q: %w", fileName, err)
	}

	var raw fileConfig
	if err := json.Unmarshal(content, &raw); err != nil {
		return Config{}, fmt.Errorf("in config.loadFromFile(): error while parsing %q: %w", fileName, err)
	}

	values := Config{
		RunAddr:              raw.RunAddr,
		LogLevel:             raw.LogLevel,
		LogFile:              raw.LogFile,
		DBFileName:           raw.DBFileName,
		DatabaseDSN:          raw.DatabaseDSN,
		MigrationsDir:        raw.MigrationsDir,
		JWTSecretKey:         raw.JWTSecretKey,
		UsernameSuffix:       raw.UsernameSuffix,
		PricingBaseURL:       raw.PricingBaseURL,
		TrustedSubnet:        raw.TrustedSubnet,
		BcryptCost:           raw.BcryptCost,
		PurgeChannelCapacity: raw.PurgeChannelCapacity,
		CORSAllowedOrigins:   raw.CORSAllowedOrigins,
	}

	durations := []struct {
		raw    string
		target *time.Duration
	}{
		{raw.DBConnectionTimeout, &values.DBConnectionTimeout},
		{raw.TokenTTL, &values.TokenTTL},
		{raw.PricingTimeout, &values.PricingTimeout},
		{raw.PricingCacheTTL, &values.PricingCacheTTL},
		{raw.PurgeInterval, &values.PurgeInterval},
	}
	for _, d := range durations {
		*d.target, err = parseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("in config.loadFromFile(): bad duration %q: %w", d.raw, err)
		}
	}

	return values, nil
}

func parseFlags(args []string) (Config, error) {
	var values Config

	flagSet := flag.NewFlagSet("todoserver", flag.ContinueOnError)
	flagSet.StringVar(&values.RunAddr, "a", "", "address and port to run server")
	flagSet.StringVar(&values.LogLevel, "l", "", "logger level")
	flagSet.StringVar(&values.DBFileName, "f", "", "JSON file name with database")
	flagSet.StringVar(&values.DatabaseDSN, "d", "", "A string with the database connection details")
	flagSet.StringVar(&values.JWTSecretKey, "k", "", "secret key used to sign access tokens")
	flagSet.StringVar(&values.PricingBaseURL, "p", "", "base URL of the pricing server")
	flagSet.StringVar(&values.TrustedSubnet, "t", "", "CIDR allowed to call the admin endpoints")
	flagSet.StringVar(&values.ConfigFile, "c", "", "path to the JSON config file")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}

	return values, nil
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

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

// New builds the configuration. Sources win in this order: command line
// flags, environment, JSON config file, built-in defaults.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	var values Config
	if !options.disableFlagsParsing {
		values, err = parseFlags(options.args)
		if err != nil {
			return nil, err
		}
	}

	var valuesFromEnv Config
	err = env.Parse(&valuesFromEnv)
	if err != nil {
		return nil, err
	}
	applyDefaults(&values, valuesFromEnv)

	if values.ConfigFile != "" {
		valuesFromFile, err := loadFromFile(values.ConfigFile)
		if err != nil {
			return nil, err
		}
		applyDefaults(&values, valuesFromFile)
	}

	applyDefaults(&values, defaultConfig)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return &values, nil
}
