package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -c nor CONFIG_PATH is given.
const DefaultPath = "configs/config.yaml"

// Index is one tracked market index.
type Index struct {
	Symbol string `yaml:"symbol" validate:"required"`
	Name   string `yaml:"name"`
}

// DisplayName falls back to the symbol when no name is configured.
func (i Index) DisplayName() string {
	if i.Name == "" {
		return i.Symbol
	}
	return i.Name
}

// Config holds all application configuration.
type Config struct {
	Indices []Index `yaml:"indices" validate:"min=1,dive"`
	Storage struct {
		ATHPath    string `yaml:"ath_path" validate:"required"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Analysis struct {
		DropIncrement   float64 `yaml:"drop_increment" validate:"gt=0,lte=100"`
		SeedFromHistory bool    `yaml:"seed_from_history"`
	} `yaml:"analysis"`
	Market struct {
		// Source is yahoo, rest or static. Empty picks rest when BaseURL is
		// set and yahoo otherwise.
		Source              string             `yaml:"source" validate:"omitempty,oneof=yahoo rest static"`
		StaticPrices        map[string]float64 `yaml:"static_prices" validate:"omitempty,dive,gt=0"`
		BaseURL             string             `yaml:"base_url" validate:"omitempty,url"`
		APIKey              string             `yaml:"api_key"`
		FetchTimeoutSeconds int                `yaml:"fetch_timeout_seconds" validate:"gt=0"`
		Retries             int                `yaml:"retries" validate:"gte=0,lte=10"`
	} `yaml:"market"`
	Proxy string `yaml:"proxy" validate:"omitempty,url"`
	Email struct {
		SMTPHost       string `yaml:"smtp_host"`
		SMTPPort       int    `yaml:"smtp_port" validate:"gt=0,lte=65535"`
		SMTPUser       string `yaml:"smtp_user"`
		SMTPPassword   string `yaml:"smtp_password"`
		SenderEmail    string `yaml:"sender_email" validate:"omitempty,email"`
		RecipientEmail string `yaml:"recipient_email" validate:"omitempty,email"`
		UseTLS         bool   `yaml:"use_tls"`
	} `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		Cron string `yaml:"cron" validate:"required,cron"`
	} `yaml:"schedule"`
	Logging struct {
		Level string `yaml:"level" validate:"oneof=DEBUG INFO WARN WARNING ERROR"`
	} `yaml:"logging"`
}

// envOverrides lists every supported environment variable by its full name.
type envOverrides struct {
	ATHPath        *string  `envconfig:"DCA_ATH_STORAGE_PATH"`
	SQLitePath     *string  `envconfig:"DCA_SQLITE_PATH"`
	DropIncrement  *float64 `envconfig:"DCA_DROP_INCREMENT"`
	FetchTimeout   *int     `envconfig:"DCA_FETCH_TIMEOUT_SECONDS"`
	FetchRetries   *int     `envconfig:"DCA_FETCH_RETRIES"`
	MarketBaseURL  *string  `envconfig:"DCA_MARKET_BASE_URL"`
	MarketAPIKey   *string  `envconfig:"DCA_MARKET_API_KEY"`
	MarketSource   *string  `envconfig:"DCA_MARKET_SOURCE"`
	SMTPHost       *string  `envconfig:"DCA_SMTP_HOST"`
	SMTPPort       *int     `envconfig:"DCA_SMTP_PORT"`
	SMTPUser       *string  `envconfig:"DCA_SMTP_USER"`
	SMTPPassword   *string  `envconfig:"DCA_SMTP_PASSWORD"`
	SenderEmail    *string  `envconfig:"DCA_SENDER_EMAIL"`
	RecipientEmail *string  `envconfig:"DCA_RECIPIENT_EMAIL"`
	SMTPUseTLS     *bool    `envconfig:"DCA_SMTP_USE_TLS"`
	TelegramToken  *string  `envconfig:"DCA_TELEGRAM_BOT_TOKEN"`
	TelegramChatID *string  `envconfig:"DCA_TELEGRAM_CHAT_ID"`
	Cron           *string  `envconfig:"DCA_CRON"`
	LogLevel       *string  `envconfig:"DCA_LOG_LEVEL"`
	Proxy          *string  `envconfig:"HTTPS_PROXY"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Indices: []Index{
			{Symbol: "^GSPC", Name: "S&P 500"},
			{Symbol: "^NDX", Name: "NASDAQ 100"},
			{Symbol: "^RUT", Name: "Russell 2000"},
		},
	}
	cfg.Storage.ATHPath = "./data/ath_records.json"
	cfg.Storage.SQLitePath = "./data/dip_sentinel.db"
	cfg.Analysis.DropIncrement = 5
	cfg.Analysis.SeedFromHistory = true
	cfg.Market.FetchTimeoutSeconds = 30
	cfg.Market.Retries = 2
	cfg.Email.SMTPHost = "smtp.gmail.com"
	cfg.Email.SMTPPort = 587
	cfg.Email.UseTLS = true
	cfg.Schedule.Cron = "0 30 22 * * 1-5"
	cfg.Logging.Level = "INFO"
	return cfg
}

// ResolvePath picks the config file: the flag value, then CONFIG_PATH, then
// DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	env.apply(cfg)

	cfg.Logging.Level = strings.ToUpper(strings.TrimSpace(cfg.Logging.Level))
	for i := range cfg.Indices {
		cfg.Indices[i].Symbol = strings.TrimSpace(cfg.Indices[i].Symbol)
	}
	return cfg, nil
}

func (e *envOverrides) apply(cfg *Config) {
	setString(&cfg.Storage.ATHPath, e.ATHPath)
	setString(&cfg.Storage.SQLitePath, e.SQLitePath)
	if e.DropIncrement != nil {
		cfg.Analysis.DropIncrement = *e.DropIncrement
	}
	if e.FetchTimeout != nil {
		cfg.Market.FetchTimeoutSeconds = *e.FetchTimeout
	}
	if e.FetchRetries != nil {
		cfg.Market.Retries = *e.FetchRetries
	}
	setString(&cfg.Market.BaseURL, e.MarketBaseURL)
	setString(&cfg.Market.APIKey, e.MarketAPIKey)
	setString(&cfg.Market.Source, e.MarketSource)
	setString(&cfg.Email.SMTPHost, e.SMTPHost)
	if e.SMTPPort != nil {
		cfg.Email.SMTPPort = *e.SMTPPort
	}
	setString(&cfg.Email.SMTPUser, e.SMTPUser)
	setString(&cfg.Email.SMTPPassword, e.SMTPPassword)
	setString(&cfg.Email.SenderEmail, e.SenderEmail)
	setString(&cfg.Email.RecipientEmail, e.RecipientEmail)
	if e.SMTPUseTLS != nil {
		cfg.Email.UseTLS = *e.SMTPUseTLS
	}
	setString(&cfg.Telegram.BotToken, e.TelegramToken)
	setString(&cfg.Telegram.ChatID, e.TelegramChatID)
	setString(&cfg.Schedule.Cron, e.Cron)
	setString(&cfg.Logging.Level, e.LogLevel)
	setString(&cfg.Proxy, e.Proxy)
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

// EmailEnabled reports whether every SMTP credential and address is set.
func (c *Config) EmailEnabled() bool {
	e := c.Email
	return e.SMTPUser != "" && e.SMTPPassword != "" && e.SenderEmail != "" && e.RecipientEmail != ""
}

// TelegramEnabled reports whether the bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// MarketSource resolves the configured data source.
func (c *Config) MarketSource() string {
	switch {
	case c.Market.Source != "":
		return c.Market.Source
	case c.Market.BaseURL != "":
		return "rest"
	default:
		return "yahoo"
	}
}

// FetchTimeout returns the per-request market data timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Market.FetchTimeoutSeconds) * time.Second
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cronParser.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	var msgs []string
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			msgs = append(msgs, describe(field, fe))
		}
	}
	switch c.Market.Source {
	case "rest":
		if c.Market.BaseURL == "" {
			msgs = append(msgs, "market.base_url is required when market.source is rest")
		}
	case "static":
		if len(c.Market.StaticPrices) == 0 {
			msgs = append(msgs, "market.static_prices is required when market.source is static")
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entry", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s is not a valid email address: %q", field, fe.Value())
	case "url":
		return fmt.Sprintf("%s is not a valid URL: %q", field, fe.Value())
	case "cron":
		return fmt.Sprintf("%s is not a valid cron expression: %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
