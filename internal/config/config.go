// Package config loads papermes settings from config.yml, .env and
// PAPERMES_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dvloznov/papermes/internal/apperrors"
	"github.com/dvloznov/papermes/internal/firefly"
	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/oracle"
)

// EnvPrefix prefixes every environment override. Nested keys are joined with
// "__", e.g. PAPERMES_FIREFLY__ACCESS_TOKEN.
const EnvPrefix = "PAPERMES"

// Settings is the full application configuration.
type Settings struct {
	Firefly  FireflySettings  `mapstructure:"firefly"`
	App      AppSettings      `mapstructure:"app"`
	Oracle   OracleSettings   `mapstructure:"oracle"`
	Server   ServerSettings   `mapstructure:"server"`
	Accounts AccountsSettings `mapstructure:"accounts"`
	Storage  StorageSettings  `mapstructure:"storage"`
	Prompts  PromptsSettings  `mapstructure:"prompts"`
}

// FireflySettings configures the ledger connection.
type FireflySettings struct {
	Host        string        `mapstructure:"host" validate:"omitempty,url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// AppSettings holds process-wide options.
type AppSettings struct {
	DefaultCurrency string `mapstructure:"default_currency" validate:"required,iso4217"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format" validate:"oneof=console json"`
}

// OracleSettings configures the vision model.
type OracleSettings struct {
	Model               string `mapstructure:"model" validate:"required"`
	APIKey              string `mapstructure:"api_key"`
	Backend             string `mapstructure:"backend" validate:"oneof=gemini vertex"`
	Project             string `mapstructure:"project"`
	Location            string `mapstructure:"location"`
	PromptTokenCost     string `mapstructure:"prompt_token_cost" validate:"numeric"`
	CompletionTokenCost string `mapstructure:"completion_token_cost" validate:"numeric"`
}

// ServerSettings configures cmd/server.
type ServerSettings struct {
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port" validate:"min=1,max=65535"`
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
	QueueSize int     `mapstructure:"queue_size" validate:"gte=1"`
	Workers   int     `mapstructure:"workers" validate:"gte=1"`
	AuthToken string  `mapstructure:"auth_token"`
}

// AccountsSettings configures the account listing.
type AccountsSettings struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// StorageSettings configures receipt image storage.
type StorageSettings struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Anonymous bool   `mapstructure:"anonymous"`
}

// PromptsSettings points at an override prompt directory.
type PromptsSettings struct {
	Dir string `mapstructure:"dir"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config path. When empty, config.yml is searched
	// in ".", "$HOME/.papermes" and "/etc/papermes".
	ConfigFile string
	// EnvFile is an explicit .env path. When empty, ./.env is loaded if present.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("firefly.host", "")
	v.SetDefault("firefly.access_token", "")
	v.SetDefault("firefly.timeout", firefly.DefaultTimeout)

	v.SetDefault("app.default_currency", "USD")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	pricing := oracle.DefaultPricing()
	v.SetDefault("oracle.model", oracle.DefaultModel)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.backend", oracle.BackendGemini)
	v.SetDefault("oracle.project", "")
	v.SetDefault("oracle.location", "")
	v.SetDefault("oracle.prompt_token_cost", pricing.PromptTokenCost.String())
	v.SetDefault("oracle.completion_token_cost", pricing.CompletionTokenCost.String())

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8100)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.queue_size", 100)
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.auth_token", "")

	v.SetDefault("accounts.cache_ttl", time.Duration(0))

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.anonymous", false)

	v.SetDefault("prompts.dir", "")
}

// Load reads settings. Precedence, highest first: environment, .env,
// config file, defaults. The result is validated.
func Load(opts Options) (*Settings, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("Load: read env file: %w", err)
		}
	} else {
		// Missing ./.env is fine.
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.papermes")
		v.AddConfigPath("/etc/papermes")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("Load: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field formats. Ledger credentials are checked separately by
// RequireLedger since not every command talks to the ledger.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidationError(fe.Namespace(), fmt.Sprintf("invalid setting %s: failed %q check", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("Validate: %w", err)
	}
	return nil
}

// RequireLedger reports whether firefly.host and firefly.access_token are set.
func (s *Settings) RequireLedger() error {
	if strings.TrimSpace(s.Firefly.Host) == "" {
		return apperrors.NewValidationError("firefly.host", "firefly.host is required (PAPERMES_FIREFLY__HOST)")
	}
	if s.Firefly.AccessToken == "" {
		return apperrors.NewValidationError("firefly.access_token", "firefly.access_token is required (PAPERMES_FIREFLY__ACCESS_TOKEN)")
	}
	return nil
}

// LedgerConfig returns the ledger client configuration.
func (s *Settings) LedgerConfig(log zerolog.Logger) firefly.ClientConfig {
	return firefly.ClientConfig{
		Host:        s.Firefly.Host,
		AccessToken: s.Firefly.AccessToken,
		Timeout:     s.Firefly.Timeout,
		Logger:      log,
	}
}

// GeminiConfig returns the oracle client configuration.
func (s *Settings) GeminiConfig() oracle.GeminiConfig {
	return oracle.GeminiConfig{
		Model:    s.Oracle.Model,
		APIKey:   s.Oracle.APIKey,
		Backend:  s.Oracle.Backend,
		Project:  s.Oracle.Project,
		Location: s.Oracle.Location,
	}
}

// Pricing returns the per-token costs used for usage reporting.
func (s *Settings) Pricing() (oracle.Pricing, error) {
	prompt, err := decimal.NewFromString(s.Oracle.PromptTokenCost)
	if err != nil {
		return oracle.Pricing{}, apperrors.NewValidationError("oracle.prompt_token_cost", err.Error())
	}
	completion, err := decimal.NewFromString(s.Oracle.CompletionTokenCost)
	if err != nil {
		return oracle.Pricing{}, apperrors.NewValidationError("oracle.completion_token_cost", err.Error())
	}
	return oracle.Pricing{PromptTokenCost: prompt, CompletionTokenCost: completion}, nil
}

// StorageConfig returns the image store configuration.
func (s *Settings) StorageConfig() imagestore.Config {
	return imagestore.Config{
		Bucket:    s.Storage.Bucket,
		Endpoint:  s.Storage.Endpoint,
		Anonymous: s.Storage.Anonymous,
	}
}

// Addr is the listen address for cmd/server.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
