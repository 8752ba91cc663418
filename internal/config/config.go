package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Auth       AuthConfig
	Engagement EngagementConfig
	NATS       NATSConfig
	Log        LogConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required,numeric"`
}

// BackendConfig содержит настройки авторитетного бэкенда
type BackendConfig struct {
	BaseURL string        `validate:"required,url"`
	Timeout time.Duration `validate:"gt=0"`
}

// AuthConfig содержит настройки проверки токенов
type AuthConfig struct {
	JWTSecret string `validate:"required,min=16"`
}

// EngagementConfig содержит настройки координатора мутаций и сессий
type EngagementConfig struct {
	MutationTimeout time.Duration `validate:"gt=0"`
	ReplyPolicy     string        `validate:"oneof=reject flatten"`
	Coalesce        bool
	SessionTTL      time.Duration `validate:"gt=0"`
}

// NATSConfig содержит настройки публикации событий
type NATSConfig struct {
	Enabled       bool
	URL           string `validate:"required_if=Enabled true"`
	SubjectPrefix string `validate:"required"`
	InitStream    bool
}

// LogConfig содержит настройки журнала
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load загружает конфигурацию из переменных окружения
// Приоритет: переменные окружения системы > .env файл > значения по умолчанию
func Load() (*Config, error) {
	// Отсутствие .env файла не ошибка
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_URL", "http://localhost:3000/api"),
			Timeout: getDuration("BACKEND_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Engagement: EngagementConfig{
			MutationTimeout: getDuration("MUTATION_TIMEOUT", 10*time.Second),
			ReplyPolicy:     getEnv("REPLY_POLICY", "reject"),
			Coalesce:        getBool("COALESCE_MUTATIONS", true),
			SessionTTL:      getDuration("SESSION_TTL", 30*time.Minute),
		},
		NATS: NATSConfig{
			Enabled:       getBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "engagement"),
			InitStream:    getBool("NATS_INIT_STREAM", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr возвращает адрес HTTP сервера
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}
