package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sjc1990app/server/internal/phone"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	OTPSalt     string
	DevMode     bool
	AppName     string

	// AdminPhones are E.164 numbers whose accounts are created with the admin role
	AdminPhones []string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string

	AWSRegion    string
	PhotosBucket string
	S3Endpoint   string
	CDNBaseURL   string

	ClassroomsSeedFile string

	RegisterRateLimit int
	VerifyRateLimit   int
	// PhoneSendLimit caps verification codes per number inside RateLimitWindow
	PhoneSendLimit  int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getenv("PORT", "8080"),
		DevMode:            os.Getenv("DEV_MODE") == "true",
		AppName:            getenv("APP_NAME", "sjc1990app"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getenv("KAFKA_TOPIC", "sms-notifications"),
		KafkaUsername:      os.Getenv("KAFKA_USERNAME"),
		KafkaPassword:      os.Getenv("KAFKA_PASSWORD"),
		AWSRegion:          getenv("AWS_REGION", "us-east-1"),
		PhotosBucket:       getenv("S3_PHOTOS_BUCKET", "sjc1990app-dev-photos"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		ClassroomsSeedFile: os.Getenv("CLASSROOMS_SEED_FILE"),
		RegisterRateLimit:  getenvInt("REGISTER_RATE_LIMIT", 10),
		VerifyRateLimit:    getenvInt("VERIFY_RATE_LIMIT", 20),
		PhoneSendLimit:     getenvInt("PHONE_SEND_LIMIT", 3),
		RateLimitWindow:    getenvDuration("RATE_LIMIT_WINDOW", 10*time.Minute),
	}
	cfg.CDNBaseURL = strings.TrimRight(getenv("CDN_BASE_URL", fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.PhotosBucket)), "/")

	// DATABASE_URL is required outside dev mode; dev mode falls back to the in-memory store
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.DatabaseURL != "" {
		if _, err := url.Parse(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}

	// The log notifier prints codes instead of delivering them, so only dev mode may run without Kafka
	if len(cfg.KafkaBrokers) == 0 && !cfg.DevMode {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	jwtSecret, err := getenvSecret("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET or JWT_SECRET_FILE environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	for _, raw := range splitList(os.Getenv("ADMIN_PHONES")) {
		number := phone.Normalize(raw)
		if !phone.Validate(number) {
			return nil, fmt.Errorf("ADMIN_PHONES contains an invalid number %q", phone.Mask(number))
		}
		cfg.AdminPhones = append(cfg.AdminPhones, number)
	}

	return cfg, nil
}

// IsAdminPhone reports whether number is on the admin bootstrap list
func (c *Config) IsAdminPhone(number string) bool {
	for _, p := range c.AdminPhones {
		if p == number {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getenvSecret prefers KEY_FILE (mounted secret) over KEY
func getenvSecret(key string) (string, error) {
	if file := os.Getenv(key + "_FILE"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s_FILE: %w", key, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(key), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
