// Пакет server — HTTP-сервер Admin Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pegasustools/admin-module/internal/api/handlers"
	"github.com/pegasustools/admin-module/internal/api/middleware"
	"github.com/pegasustools/admin-module/internal/config"
	"github.com/pegasustools/admin-module/internal/domain/rbac"
)

// Server — HTTP-сервер Admin Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Deps — обработчики и middleware, из которых собираются маршруты.
type Deps struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	// JWTAuth — проверка токенов Keycloak. nil отключает аутентификацию (только тесты).
	JWTAuth *middleware.JWTAuth
	// Validator — проверка запросов по OpenAPI. nil отключает проверку.
	Validator *middleware.RequestValidator
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // миграция выполняется синхронно в запросе
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты chi.
// Health и metrics проверяются Kubernetes напрямую и не требуют JWT.
// Preflight OPTIONS endpoint миграции обрабатывается CORS до проверки JWT.
func NewRouter(cfg *config.Config, logger *slog.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", deps.Health.HealthLive)
	router.Get("/health/ready", deps.Health.HealthReady)
	router.Get("/metrics", deps.Health.GetMetrics)

	authenticate := func(r chi.Router) {
		if deps.JWTAuth != nil {
			r.Use(deps.JWTAuth.Middleware())
		}
	}

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/migration/firebase", func(m chi.Router) {
			m.Use(middleware.CORS(cfg.CORSAllowOrigin))
			authenticate(m)
			m.Use(middleware.RequireRole(rbac.RoleAdmin))
			m.Post("/", deps.API.RunMigration)
		})

		api.Group(func(d chi.Router) {
			authenticate(d)
			if deps.Validator != nil {
				d.Use(deps.Validator.Middleware())
			}

			d.Group(func(read chi.Router) {
				read.Use(middleware.RequireRole(rbac.RoleReadonly))
				read.Get("/users", deps.API.ListUsers)
				read.Get("/users/{id}", deps.API.GetUser)
				read.Get("/users/{id}/operations", deps.API.ListUserOperations)
				read.Get("/distributors", deps.API.ListDistributors)
				read.Get("/distributors/{id}", deps.API.GetDistributor)
				read.Get("/distributors/{id}/credits", deps.API.ListDistributorCredits)
			})

			d.Group(func(write chi.Router) {
				write.Use(middleware.RequireRole(rbac.RoleAdmin))
				write.Post("/distributors", deps.API.CreateDistributor)
				write.Post("/distributors/{id}/credits", deps.API.AddDistributorCredits)
				write.Post("/distributors/{id}/transfers", deps.API.TransferCredits)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
