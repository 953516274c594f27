// Пакет config — загрузка и валидация конфигурации Admin Module Pegasus Tools
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Admin Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Значение Access-Control-Allow-Origin для endpoint миграции
	CORSAllowOrigin string

	// --- PostgreSQL (целевое хранилище) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak (целевой Identity Provider) ---

	// URL Keycloak (без trailing slash)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для Keycloak Admin API. Опционален при старте:
	// без него недоступна только миграция (ошибка конфигурации).
	KeycloakClientSecret string
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration

	// --- JWT ---

	JWTIssuer  string
	JWTJWKSURL string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Путь к CA-сертификату Keycloak (пусто — системный пул)
	CACertPath string

	// --- Legacy-хранилище (Firebase) ---

	// Базовый URL Realtime Database (https://<project>.firebaseio.com)
	LegacyDatabaseURL string
	// Web API key проекта Firebase
	LegacyAPIKey string
	// Базовый URL Identity Toolkit
	LegacyAuthURL string
	// Таймаут HTTP-запросов к legacy-хранилищу
	LegacyTimeout time.Duration

	// --- Миграция ---

	// Временный пароль для пользователей без пароля в legacy-хранилище.
	// Пустое значение — генерируется случайный пароль на каждого пользователя.
	MigrationFallbackPassword string

	// --- Маппинг групп → ролей ---

	RoleAdminGroups    []string
	RoleReadonlyGroups []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// MigrationSettings — параметры, необходимые процедуре миграции.
// Передаются в сервис явно при создании.
type MigrationSettings struct {
	LegacyDatabaseURL    string
	LegacyAPIKey         string
	KeycloakClientSecret string
	FallbackPassword     string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("PT_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("PT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PT_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PT_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("PT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.CORSAllowOrigin = getEnvDefault("PT_CORS_ALLOW_ORIGIN", "*")

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("PT_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("PT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PT_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("PT_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("PT_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("PT_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("PT_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PT_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	cfg.KeycloakURL, err = getEnvRequired("PT_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	cfg.KeycloakRealm = getEnvDefault("PT_KEYCLOAK_REALM", "pegasus")

	cfg.KeycloakClientID, err = getEnvRequired("PT_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// Секрет не обязателен при старте: его отсутствие проверяется миграцией
	cfg.KeycloakClientSecret = getEnvDefault("PT_KEYCLOAK_CLIENT_SECRET", "")

	cfg.KeycloakReadinessTimeout, err = getEnvDuration("PT_KEYCLOAK_READINESS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_KEYCLOAK_READINESS_TIMEOUT: %w", err)
	}

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("PT_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWTJWKSURL = getEnvDefault("PT_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.CACertPath = getEnvDefault("PT_CA_CERT_PATH", "")

	cfg.JWKSClientTimeout, err = getEnvDuration("PT_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("PT_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PT_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("PT_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_JWT_LEEWAY: %w", err)
	}

	// --- Legacy-хранилище ---

	cfg.LegacyDatabaseURL = strings.TrimRight(getEnvDefault("PT_LEGACY_DATABASE_URL", ""), "/")
	if cfg.LegacyDatabaseURL != "" {
		if err := validateHTTPURL(cfg.LegacyDatabaseURL); err != nil {
			return nil, fmt.Errorf("PT_LEGACY_DATABASE_URL: %w", err)
		}
	}

	cfg.LegacyAPIKey = getEnvDefault("PT_LEGACY_API_KEY", "")

	cfg.LegacyAuthURL = strings.TrimRight(
		getEnvDefault("PT_LEGACY_AUTH_URL", "https://identitytoolkit.googleapis.com"), "/")
	if err := validateHTTPURL(cfg.LegacyAuthURL); err != nil {
		return nil, fmt.Errorf("PT_LEGACY_AUTH_URL: %w", err)
	}

	cfg.LegacyTimeout, err = getEnvDuration("PT_LEGACY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_LEGACY_TIMEOUT: %w", err)
	}

	// --- Миграция ---

	cfg.MigrationFallbackPassword = getEnvDefault("PT_MIGRATION_FALLBACK_PASSWORD", "")

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("PT_ROLE_ADMIN_GROUPS", "pegasus-admins"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("PT_ROLE_READONLY_GROUPS", "pegasus-viewers"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("PT_DEPHEALTH_GROUP", "pegasus")

	cfg.DephealthCheckInterval, err = getEnvDuration("PT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("PT_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Migration возвращает параметры процедуры миграции.
func (c *Config) Migration() MigrationSettings {
	return MigrationSettings{
		LegacyDatabaseURL:    c.LegacyDatabaseURL,
		LegacyAPIKey:         c.LegacyAPIKey,
		KeycloakClientSecret: c.KeycloakClientSecret,
		FallbackPassword:     c.MigrationFallbackPassword,
	}
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// validateHTTPURL проверяет, что строка — абсолютный http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ожидается абсолютный http(s) URL, получено %q", raw)
	}
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
