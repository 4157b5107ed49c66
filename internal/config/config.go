package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	OpenAI        OpenAIConfig
	AWS           AWSConfig
	Mail          MailConfig
	App           AppConfig
	Session       SessionConfig
	OTP           OTPConfig
	Catalog       CatalogConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	TLSPort      int
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level    string
	Format   string
	FilePath string
}

type OpenAIConfig struct {
	APIKey            string
	Model             string
	FilterModel       string
	Temperature       float64
	MaxTokens         int
	ModerationEnabled bool
	AIGibberishCheck  bool
}

type AWSConfig struct {
	Region            string
	SESFromEmail      string
	NotificationEmail string
	S3BucketName      string
}

// MailConfig selects the transport used for OTP and transcript emails.
type MailConfig struct {
	Provider     string // ses | smtp
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type AppConfig struct {
	CompanyName         string
	VerificationBaseURL string
	ContactEmail        string
	ContactFormURL      string
	WebsiteURL          string
}

type SessionConfig struct {
	Store         string // memory | redis
	TTL           time.Duration
	IdleFollowUp  time.Duration
	IdleEnd       time.Duration
	ResetDelay    time.Duration
	SweepInterval time.Duration
}

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	SendLimit   int
	SendWindow  time.Duration
}

type CatalogConfig struct {
	File           string
	MatchThreshold float64
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	TLS     bool
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	CAFile   string
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env (if present) and the process environment once.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			EnableTLS:    getEnvBool("ENABLE_TLS", false),
			TLSPort:      getEnvInt("TLS_PORT", 8443),
			AutoCert:     getEnvBool("TLS_AUTO_CERT", false),
			Domain:       getEnv("TLS_DOMAIN", "localhost"),
			CertFile:     getEnv("TLS_CERT_FILE", ""),
			KeyFile:      getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:  getEnv("TLS_AUTOCERT_DIR", "./certs"),
			Email:        getEnv("TLS_EMAIL", ""),
			CORSOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://localhost:*"}),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "console"),
			FilePath: getEnv("LOG_FILE_PATH", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			Model:             getEnv("OPENAI_MODEL", "gpt-4"),
			FilterModel:       getEnv("OPENAI_FILTER_MODEL", "gpt-3.5-turbo"),
			Temperature:       getEnvFloat("OPENAI_TEMPERATURE", 0.8),
			MaxTokens:         getEnvInt("OPENAI_MAX_TOKENS", 200),
			ModerationEnabled: getEnvBool("MODERATION_ENABLED", true),
			AIGibberishCheck:  getEnvBool("AI_GIBBERISH_CHECK", true),
		},
		AWS: AWSConfig{
			Region:            getEnv("AWS_REGION", "us-east-1"),
			SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
			NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
			S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(getEnv("MAIL_PROVIDER", "ses")),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:     getEnv("SMTP_FROM", ""),
		},
		App: AppConfig{
			CompanyName:         getEnv("COMPANY_NAME", "Aniket Solutions"),
			VerificationBaseURL: getEnv("VERIFICATION_BASE_URL", ""),
			ContactEmail:        getEnv("CONTACT_EMAIL", "info@aniketsolutions.com"),
			ContactFormURL:      getEnv("CONTACT_FORM_URL", "https://www.aniketsolutions.com/contact"),
			WebsiteURL:          getEnv("WEBSITE_URL", "https://www.aniketsolutions.com"),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(getEnv("SESSION_STORE", "memory")),
			TTL:           getEnvDuration("SESSION_TTL", 2*time.Hour),
			IdleFollowUp:  getEnvDuration("IDLE_FOLLOW_UP", 3*time.Minute),
			IdleEnd:       getEnvDuration("IDLE_END", 3*time.Minute),
			ResetDelay:    getEnvDuration("RESET_DELAY", 5*time.Second),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 15*time.Second),
		},
		OTP: OTPConfig{
			TTL:         getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),
			SendLimit:   getEnvInt("OTP_SEND_LIMIT", 5),
			SendWindow:  getEnvDuration("OTP_SEND_WINDOW", 10*time.Minute),
		},
		Catalog: CatalogConfig{
			File:           getEnv("CATALOG_FILE", ""),
			MatchThreshold: getEnvFloat("MATCH_THRESHOLD", 0.3),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "conversation-events"),
			TLS:     getEnvBool("KAFKA_TLS", false),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_INDEX", "conversation-transcripts"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "chat_analytics"),
			CAFile:   getEnv("CLICKHOUSE_CA_FILE", ""),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg
}

// Get returns the last loaded config, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// SenderAddress returns the configured From address for the selected mail provider.
func (c *Config) SenderAddress() string {
	if c.Mail.Provider == "smtp" {
		return c.Mail.SMTPFrom
	}
	return c.AWS.SESFromEmail
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
