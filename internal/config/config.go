// Package config centralises configuration parsing for the producer, consumer
// and dead-letter services.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gopkg.in/yaml.v3"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/retry"
)

// Dead-letter policies understood by the consumer.
const (
	DeadLetterRequeue = "requeue"
	DeadLetterPark    = "park"
)

// Config captures runtime configuration values shared by all binaries.
type Config struct {
	Env                 string
	LogLevel            string
	HTTPAddress         string
	ConsumerHTTPAddress string

	RabbitMQURL string
	QueueName   string

	PostgresURL     string
	PostgresMigrate bool

	RetryBackoff    time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64

	PublishTimeout  time.Duration
	PublishPoolSize int

	ConsumerPrefetch int
	DeadLetterPolicy string

	DeadLetterPollInterval time.Duration // Interval between replay passes.
	DeadLetterMaxReplays   int           // Replays before a row is quarantined.
	DeadLetterBatchSize    int
	DeadLetterHTTPAddress  string // Empty disables the replayer's health server.

	JWTSecret string
	JWTIssuer string
}

type configFile struct {
	Service struct {
		Env                 string `yaml:"env"`
		LogLevel            string `yaml:"log_level"`
		HTTPAddress         string `yaml:"http_address"`
		ConsumerHTTPAddress string `yaml:"consumer_http_address"`
	} `yaml:"service"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		VHost    string `yaml:"vhost"`
		Queue    string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Postgres struct {
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DB       string `yaml:"db"`
		Migrate  *bool  `yaml:"migrate"`
	} `yaml:"postgres"`
	Retry struct {
		Backoff    time.Duration `yaml:"backoff"`
		MaxDelay   time.Duration `yaml:"max_delay"`
		Multiplier float64       `yaml:"multiplier"`
	} `yaml:"retry"`
	Publish struct {
		Timeout  time.Duration `yaml:"timeout"`
		PoolSize int           `yaml:"pool_size"`
	} `yaml:"publish"`
	Consumer struct {
		Prefetch         int    `yaml:"prefetch"`
		DeadLetterPolicy string `yaml:"dead_letter_policy"`
	} `yaml:"consumer"`
	DeadLetters struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxReplays   int           `yaml:"max_replays"`
		BatchSize    int           `yaml:"batch_size"`
		HTTPAddress  string        `yaml:"http_address"`
	} `yaml:"dead_letters"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
}

type brokerParts struct {
	host, user, password, vhost string
	port                        int
}

type databaseParts struct {
	host, user, password, db string
	port                     int
}

// Load reads the optional CONFIG_FILE and then environment variables, which
// take precedence, applying defaults suitable for local development. A full
// RABBITMQ_URL or POSTGRES_URL wins over the individual host/port/user parts.
func Load() (Config, error) {
	cfg := Config{
		Env:                    "production",
		LogLevel:               "info",
		HTTPAddress:            ":8000",
		ConsumerHTTPAddress:    ":8001",
		QueueName:              "user_activity_events",
		PostgresMigrate:        true,
		RetryBackoff:           retry.DefaultInitial,
		RetryMaxDelay:          retry.DefaultMax,
		RetryMultiplier:        retry.DefaultMultiplier,
		PublishTimeout:         5 * time.Second,
		PublishPoolSize:        8,
		ConsumerPrefetch:       1,
		DeadLetterPolicy:       DeadLetterRequeue,
		DeadLetterPollInterval: 30 * time.Second,
		DeadLetterMaxReplays:   5,
		DeadLetterBatchSize:    50,
		DeadLetterHTTPAddress:  ":8002",
	}
	broker := brokerParts{host: "localhost", port: 5672, user: "guest", password: "guest", vhost: "/"}
	database := databaseParts{host: "localhost", port: 5432, user: "postgres", password: "postgres", db: "user_activity_db"}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		f.apply(&cfg, &broker, &database)
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPAddress = getEnv("HTTP_ADDRESS", cfg.HTTPAddress)
	cfg.ConsumerHTTPAddress = getEnv("CONSUMER_HTTP_ADDRESS", cfg.ConsumerHTTPAddress)

	broker.host = getEnv("RABBITMQ_HOST", broker.host)
	broker.port = getIntEnv("RABBITMQ_PORT", broker.port)
	broker.user = getEnv("RABBITMQ_USER", broker.user)
	broker.password = getEnv("RABBITMQ_PASSWORD", broker.password)
	broker.vhost = getEnv("RABBITMQ_VHOST", broker.vhost)
	switch {
	case getEnv("RABBITMQ_URL", "") != "":
		cfg.RabbitMQURL = getEnv("RABBITMQ_URL", "")
	case cfg.RabbitMQURL == "" || anyEnv("RABBITMQ_HOST", "RABBITMQ_PORT", "RABBITMQ_USER", "RABBITMQ_PASSWORD", "RABBITMQ_VHOST"):
		cfg.RabbitMQURL = broker.url()
	}
	cfg.QueueName = getEnv("QUEUE_NAME", cfg.QueueName)

	database.host = getEnv("POSTGRES_HOST", database.host)
	database.port = getIntEnv("POSTGRES_PORT", database.port)
	database.user = getEnv("POSTGRES_USER", database.user)
	database.password = getEnv("POSTGRES_PASSWORD", database.password)
	database.db = getEnv("POSTGRES_DB", database.db)
	switch {
	case getEnv("POSTGRES_URL", "") != "":
		cfg.PostgresURL = getEnv("POSTGRES_URL", "")
	case cfg.PostgresURL == "" || anyEnv("POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"):
		cfg.PostgresURL = database.url()
	}
	cfg.PostgresMigrate = getBoolEnv("POSTGRES_MIGRATE", cfg.PostgresMigrate)

	cfg.RetryBackoff = getDurationEnv("RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.RetryMaxDelay = getDurationEnv("RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	cfg.RetryMultiplier = getFloatEnv("RETRY_MULTIPLIER", cfg.RetryMultiplier)
	cfg.PublishTimeout = getDurationEnv("PUBLISH_TIMEOUT", cfg.PublishTimeout)
	cfg.PublishPoolSize = getIntEnv("PUBLISH_POOL_SIZE", cfg.PublishPoolSize)
	cfg.ConsumerPrefetch = getIntEnv("CONSUMER_PREFETCH", cfg.ConsumerPrefetch)
	cfg.DeadLetterPolicy = strings.ToLower(getEnv("CONSUMER_DEAD_LETTER_POLICY", cfg.DeadLetterPolicy))
	cfg.DeadLetterPollInterval = getDurationEnv("DEAD_LETTER_POLL_INTERVAL", cfg.DeadLetterPollInterval)
	cfg.DeadLetterMaxReplays = getIntEnv("DEAD_LETTER_MAX_REPLAYS", cfg.DeadLetterMaxReplays)
	cfg.DeadLetterBatchSize = getIntEnv("DEAD_LETTER_BATCH_SIZE", cfg.DeadLetterBatchSize)
	if value, ok := os.LookupEnv("DEAD_LETTER_HTTP_ADDRESS"); ok {
		cfg.DeadLetterHTTPAddress = strings.TrimSpace(value)
	}
	cfg.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("AUTH_JWT_ISSUER", cfg.JWTIssuer)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (f configFile) apply(cfg *Config, broker *brokerParts, database *databaseParts) {
	setString(&cfg.Env, f.Service.Env)
	setString(&cfg.LogLevel, f.Service.LogLevel)
	setString(&cfg.HTTPAddress, f.Service.HTTPAddress)
	setString(&cfg.ConsumerHTTPAddress, f.Service.ConsumerHTTPAddress)

	setString(&cfg.RabbitMQURL, f.RabbitMQ.URL)
	setString(&broker.host, f.RabbitMQ.Host)
	setInt(&broker.port, f.RabbitMQ.Port)
	setString(&broker.user, f.RabbitMQ.User)
	setString(&broker.password, f.RabbitMQ.Password)
	setString(&broker.vhost, f.RabbitMQ.VHost)
	setString(&cfg.QueueName, f.RabbitMQ.Queue)

	setString(&cfg.PostgresURL, f.Postgres.URL)
	setString(&database.host, f.Postgres.Host)
	setInt(&database.port, f.Postgres.Port)
	setString(&database.user, f.Postgres.User)
	setString(&database.password, f.Postgres.Password)
	setString(&database.db, f.Postgres.DB)
	if f.Postgres.Migrate != nil {
		cfg.PostgresMigrate = *f.Postgres.Migrate
	}

	setDuration(&cfg.RetryBackoff, f.Retry.Backoff)
	setDuration(&cfg.RetryMaxDelay, f.Retry.MaxDelay)
	if f.Retry.Multiplier > 0 {
		cfg.RetryMultiplier = f.Retry.Multiplier
	}
	setDuration(&cfg.PublishTimeout, f.Publish.Timeout)
	setInt(&cfg.PublishPoolSize, f.Publish.PoolSize)
	setInt(&cfg.ConsumerPrefetch, f.Consumer.Prefetch)
	setString(&cfg.DeadLetterPolicy, f.Consumer.DeadLetterPolicy)
	setDuration(&cfg.DeadLetterPollInterval, f.DeadLetters.PollInterval)
	setInt(&cfg.DeadLetterMaxReplays, f.DeadLetters.MaxReplays)
	setInt(&cfg.DeadLetterBatchSize, f.DeadLetters.BatchSize)
	setString(&cfg.DeadLetterHTTPAddress, f.DeadLetters.HTTPAddress)
	setString(&cfg.JWTSecret, f.Auth.JWTSecret)
	setString(&cfg.JWTIssuer, f.Auth.JWTIssuer)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.QueueName) == "" {
		errs = append(errs, errors.New("queue name must not be empty"))
	}
	if _, err := amqp.ParseURI(c.RabbitMQURL); err != nil {
		errs = append(errs, fmt.Errorf("rabbitmq url: %w", err))
	}
	if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		errs = append(errs, fmt.Errorf("postgres url must be a postgres:// url"))
	}
	if c.DeadLetterPolicy != DeadLetterRequeue && c.DeadLetterPolicy != DeadLetterPark {
		errs = append(errs, fmt.Errorf("dead letter policy %q must be %q or %q", c.DeadLetterPolicy, DeadLetterRequeue, DeadLetterPark))
	}
	if c.RetryBackoff <= 0 {
		errs = append(errs, errors.New("retry backoff must be positive"))
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		errs = append(errs, errors.New("retry max delay must not be shorter than the retry backoff"))
	}
	if c.RetryMultiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.PublishTimeout <= 0 {
		errs = append(errs, errors.New("publish timeout must be positive"))
	}
	if c.PublishPoolSize <= 0 {
		errs = append(errs, errors.New("publish pool size must be positive"))
	}
	if c.ConsumerPrefetch <= 0 {
		errs = append(errs, errors.New("consumer prefetch must be positive"))
	}
	if c.DeadLetterPollInterval <= 0 {
		errs = append(errs, errors.New("dead letter poll interval must be positive"))
	}
	if c.DeadLetterMaxReplays <= 0 {
		errs = append(errs, errors.New("dead letter max replays must be positive"))
	}
	if c.DeadLetterBatchSize <= 0 {
		errs = append(errs, errors.New("dead letter batch size must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RetryPolicy returns the reconnect schedule shared by broker and database loops.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{Initial: c.RetryBackoff, Max: c.RetryMaxDelay, Multiplier: c.RetryMultiplier}
}

// AuthEnabled reports whether bearer authentication is required on ingress.
func (c Config) AuthEnabled() bool { return c.JWTSecret != "" }

// String renders the configuration for logs with credentials removed.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Env:%s LogLevel:%s HTTPAddress:%s ConsumerHTTPAddress:%s RabbitMQURL:%s QueueName:%s PostgresURL:%s PostgresMigrate:%t Retry:%s/%s/x%.2f PublishTimeout:%s PublishPoolSize:%d ConsumerPrefetch:%d DeadLetterPolicy:%s DeadLetterPollInterval:%s DeadLetterMaxReplays:%d DeadLetterBatchSize:%d DeadLetterHTTPAddress:%s Auth:%t}",
		c.Env, c.LogLevel, c.HTTPAddress, c.ConsumerHTTPAddress,
		redactURL(c.RabbitMQURL), c.QueueName, redactURL(c.PostgresURL), c.PostgresMigrate,
		c.RetryBackoff, c.RetryMaxDelay, c.RetryMultiplier,
		c.PublishTimeout, c.PublishPoolSize, c.ConsumerPrefetch,
		c.DeadLetterPolicy, c.DeadLetterPollInterval, c.DeadLetterMaxReplays, c.DeadLetterBatchSize, c.DeadLetterHTTPAddress,
		c.AuthEnabled(),
	)
}

func (p brokerParts) url() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     p.host,
		Port:     p.port,
		Username: p.user,
		Password: p.password,
		Vhost:    p.vhost,
	}.String()
}

func (p databaseParts) url() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.user, p.password),
		Host:     net.JoinHostPort(p.host, strconv.Itoa(p.port)),
		Path:     "/" + p.db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func anyEnv(keys ...string) bool {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return true
		}
	}
	return false
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value time.Duration) {
	if value > 0 {
		*dst = value
	}
}
