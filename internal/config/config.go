package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config содержит настройки приложения
type Config struct {
	DBHost     string // Хост базы данных
	DBPort     string // Порт базы данных
	DBUser     string // Пользователь базы данных
	DBPassword string // Пароль базы данных
	DBName     string // Имя базы данных
	DBSSLMode  string

	StorageDriver string // postgres или memory
	HTTPAddr      string
	NATSURL       string // пусто - события не публикуются
	LogLevel      string

	LockTimeout       time.Duration // Ожидание блокировки счета
	TransferSweepSpec string        // cron-выражение прохода регулярных переводов
	InterestSweepSpec string        // cron-выражение начисления процентов
	RatesSource       string        // static или cbr
	RatesURL          string
	RatesRefreshSpec  string

	SMTP SMTPConfig
}

// SMTPConfig - параметры почтовых уведомлений
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	From               string
	Enabled            bool
	InsecureSkipVerify bool
}

// LoadConfig загружает конфигурацию из .env файла и окружения
func LoadConfig() (*Config, error) {
	// Загружаем переменные окружения из .env файла
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Файл .env не найден")
	}

	lockTimeout, err := time.ParseDuration(getEnv("LEDGER_LOCK_TIMEOUT", "2s"))
	if err != nil || lockTimeout <= 0 {
		return nil, fmt.Errorf("invalid LEDGER_LOCK_TIMEOUT: %q", os.Getenv("LEDGER_LOCK_TIMEOUT"))
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	config := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "bank"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		NATSURL:       os.Getenv("NATS_URL"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		LockTimeout:       lockTimeout,
		TransferSweepSpec: getEnv("TRANSFER_SWEEP_SPEC", "*/5 * * * *"),
		InterestSweepSpec: getEnv("INTEREST_SWEEP_SPEC", "0 1 * * *"),
		RatesSource:       strings.ToLower(getEnv("RATES_SOURCE", "static")),
		RatesURL:          os.Getenv("RATES_URL"),
		RatesRefreshSpec:  getEnv("RATES_REFRESH_SPEC", "0 */6 * * *"),

		SMTP: SMTPConfig{
			Host:               os.Getenv("SMTP_HOST"),
			Port:               smtpPort,
			User:               os.Getenv("SMTP_USER"),
			Password:           os.Getenv("SMTP_PASS"),
			From:               os.Getenv("SMTP_FROM"),
			Enabled:            os.Getenv("EMAIL_SENDER_ENABLED") == "true",
			InsecureSkipVerify: os.Getenv("INSECURE_SKIP_VERIFY") == "true",
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.RatesSource {
	case "static", "cbr":
	default:
		return fmt.Errorf("unknown RATES_SOURCE %q", c.RatesSource)
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required when EMAIL_SENDER_ENABLED=true")
	}
	return nil
}

// DSN - строка подключения к PostgreSQL
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
