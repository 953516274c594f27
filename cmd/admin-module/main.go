// Точка входа Admin Module — backend панели администратора Pegasus Tools.
// Загружает конфигурацию, применяет миграции БД, подключается к PostgreSQL,
// создаёт клиенты Keycloak и legacy-хранилища, сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/pegasustools/admin-module/internal/api/handlers"
	"github.com/pegasustools/admin-module/internal/api/middleware"
	"github.com/pegasustools/admin-module/internal/api/openapi"
	"github.com/pegasustools/admin-module/internal/config"
	"github.com/pegasustools/admin-module/internal/database"
	"github.com/pegasustools/admin-module/internal/keycloak"
	"github.com/pegasustools/admin-module/internal/legacy"
	"github.com/pegasustools/admin-module/internal/repository"
	"github.com/pegasustools/admin-module/internal/server"
	"github.com/pegasustools/admin-module/internal/service"
)

func main() {
	// 0. Локальный .env (для разработки). Переменные окружения имеют приоритет.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Admin Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Admin Module остановлен с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Admin Module остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.LegacyDatabaseURL == "" || cfg.LegacyAPIKey == "" || cfg.KeycloakClientSecret == "" {
		logger.Warn("Миграция из legacy-хранилища не сконфигурирована, endpoint будет возвращать ошибку конфигурации")
	}

	// 3. Миграции схемы БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 4. PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиенты внешних систем
	var kcHTTPClient *http.Client
	if cfg.CACertPath != "" {
		kcHTTPClient, err = buildHTTPClientWithCA(cfg.CACertPath)
		if err != nil {
			return fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		kcHTTPClient, // nil — стандартный пул CA
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
		slog.Bool("admin_api", kcClient.Configured()),
	)

	legacyClient := legacy.New(cfg.LegacyDatabaseURL, cfg.LegacyAuthURL, cfg.LegacyAPIKey, cfg.LegacyTimeout, logger)

	// 6. Репозитории
	userRepo := repository.NewUserRepository(pool)
	operationRepo := repository.NewOperationRepository(pool)
	distributorRepo := repository.NewDistributorRepository(pool)
	ledgerRepo := repository.NewCreditLedgerRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Сервисы
	migrationSvc := service.NewMigrationService(cfg.Migration(), legacyClient, kcClient, userRepo, operationRepo, logger)
	userSvc := service.NewUserService(userRepo, operationRepo, logger)
	distributorSvc := service.NewDistributorService(distributorRepo, logger)
	creditSvc := service.NewCreditService(txRunner, ledgerRepo, logger)

	// 8. Readiness: PostgreSQL, JWKS Keycloak и, при наличии секрета, Admin API
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.KeycloakReadinessTimeout)
	if err != nil {
		return fmt.Errorf("создание Keycloak readiness checker: %w", err)
	}
	checkers := []handlers.NamedChecker{
		{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		{Name: "keycloak", Checker: kcChecker},
	}
	if kcClient.Configured() {
		checkers = append(checkers, handlers.NamedChecker{Name: "keycloak_admin", Checker: kcClient})
	}

	// 9. JWT и валидация по OpenAPI
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		CACertPath:      cfg.CACertPath,
		Issuer:          cfg.JWTIssuer,
		AdminGroups:     cfg.RoleAdminGroups,
		ReadonlyGroups:  cfg.RoleReadonlyGroups,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("создание JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		return err
	}

	// 10. topologymetrics — мониторинг PostgreSQL и Keycloak
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "admin-module",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}
	defer func() {
		if dephealthSvc != nil {
			dephealthSvc.Stop()
		}
	}()

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, server.Deps{
		API:       handlers.NewAPIHandler(migrationSvc, userSvc, distributorSvc, creditSvc, logger),
		Health:    handlers.NewHealthHandler(checkers...),
		JWTAuth:   jwtAuth,
		Validator: validator,
	})
	return srv.Run(ctx)
}

// buildHTTPClientWithCA создаёт HTTP-клиент Keycloak Admin API с кастомным CA.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("файл не содержит PEM-сертификатов")
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
