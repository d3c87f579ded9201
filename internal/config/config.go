package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/counterpos/counterpos/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Kafka      KafkaConfig
	Notifier   NotifierConfig
	Auth       AuthConfig
	Cache      CacheConfig
	Sequence   SequenceConfig
	Payment    PaymentConfig
	Sentry     SentryConfig
	Metrics    MetricsConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxOpenConn int           `mapstructure:"max_open_conns"`
	MaxIdleConn int           `mapstructure:"max_idle_conns"`
	ConnMaxLife time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate bool          `mapstructure:"auto_migrate"`
	// LockTimeout bounds row lock waits inside a transaction, 0 waits forever
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// NotifierConfig controls the fire-and-forget event transport
type NotifierConfig struct {
	Enabled     bool
	PubSub      types.PubSubType `mapstructure:"pubsub" validate:"omitempty,oneof=memory kafka"`
	TopicPrefix string           `mapstructure:"topic_prefix"`
	// subscriber retry for the inventory and notification handlers
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type AuthConfig struct {
	Secret string
}

type CacheConfig struct {
	Enabled bool
	// MembershipTTL bounds how long a revoked membership keeps working
	MembershipTTL time.Duration `mapstructure:"membership_ttl"`
}

type SequenceConfig struct {
	// Timezone decides where a business day starts for daily order numbers
	Timezone      string
	InvoicePrefix string        `mapstructure:"invoice_prefix"`
	MaxRetries    uint64        `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type PaymentConfig struct {
	ProviderTimeout     time.Duration     `mapstructure:"provider_timeout"`
	ExpiryTTL           time.Duration     `mapstructure:"expiry_ttl"`
	ExpirySweepInterval time.Duration     `mapstructure:"expiry_sweep_interval"`
	MobileMoney         MobileMoneyConfig `mapstructure:"mobilemoney"`
	Stripe              StripeConfig
}

type MobileMoneyConfig struct {
	Enabled       bool
	BaseURL       string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// RateLimit is the number of API calls per second, 0 disables limiting
	RateLimit   float64 `mapstructure:"rate_limit"`
	RetryMax    int     `mapstructure:"retry_max"`
	CallbackURL string  `mapstructure:"callback_url"`
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func NewConfig() (*Configuration, error) {
	// .env is optional, real deployments use plain environment variables
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/counterpos")

	v.SetEnvPrefix("COUNTERPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.lock_timeout", 5*time.Second)
	v.SetDefault("notifier.pubsub", types.MemoryPubSub)
	v.SetDefault("notifier.topic_prefix", "counterpos.")
	v.SetDefault("notifier.max_retries", 3)
	v.SetDefault("notifier.initial_interval", time.Second)
	v.SetDefault("notifier.max_interval", 10*time.Second)
	v.SetDefault("notifier.multiplier", 2.0)
	v.SetDefault("notifier.max_elapsed_time", time.Minute)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.membership_ttl", 5*time.Minute)
	v.SetDefault("sequence.timezone", "UTC")
	v.SetDefault("sequence.invoice_prefix", "INV")
	v.SetDefault("sequence.max_retries", 3)
	v.SetDefault("sequence.retry_interval", 50*time.Millisecond)
	v.SetDefault("payment.provider_timeout", 15*time.Second)
	v.SetDefault("payment.expiry_ttl", 30*time.Minute)
	v.SetDefault("payment.expiry_sweep_interval", 5*time.Minute)
	v.SetDefault("payment.mobilemoney.retry_max", 2)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Sequence.Location(); err != nil {
		return err
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Sequence: SequenceConfig{
			Timezone:      "UTC",
			InvoicePrefix: "INV",
			MaxRetries:    3,
			RetryInterval: 10 * time.Millisecond,
		},
		Payment: PaymentConfig{
			ProviderTimeout: 5 * time.Second,
			ExpiryTTL:       30 * time.Minute,
		},
		Cache: CacheConfig{Enabled: true, MembershipTTL: time.Minute},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetURL returns the DSN in URL form, as golang-migrate expects it
func (c PostgresConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode,
	)
}

// Location returns the business timezone used for period keys
func (c SequenceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
