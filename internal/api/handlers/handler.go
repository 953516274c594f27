// handler.go — обработчик API панели Pegasus Tools.
// Делегирует запросы в сервисный слой и отображает ошибки сервисов
// в HTTP-ответы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	apierrors "github.com/pegasustools/admin-module/internal/api/errors"
	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/service"
)

// MigrationRunner — запуск миграции из legacy-хранилища.
// Реализуется service.MigrationService.
type MigrationRunner interface {
	Run(ctx context.Context, adminEmail, adminPassword string) (*model.MigrationStats, error)
}

// UserReader — выборки пользователей. Реализуется service.UserService.
type UserReader interface {
	List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ListOperations(ctx context.Context, userID string, limit, offset int) ([]*model.Operation, error)
}

// DistributorManager — управление дистрибьюторами.
// Реализуется service.DistributorService.
type DistributorManager interface {
	Create(ctx context.Context, name, email string) (*model.Distributor, error)
	Get(ctx context.Context, id string) (*model.Distributor, error)
	List(ctx context.Context, status *string, limit, offset int) ([]*model.Distributor, int, error)
}

// CreditManager — движение кредитов. Реализуется service.CreditService.
type CreditManager interface {
	Transfer(ctx context.Context, distributorID, userID string, amount decimal.Decimal, description string) (*model.TransferResult, error)
	AddCredits(ctx context.Context, distributorID string, amount decimal.Decimal, description string) (*model.CreditEntry, decimal.Decimal, error)
	ListLedger(ctx context.Context, distributorID string, limit, offset int) ([]*model.CreditEntry, int, error)
}

// APIHandler — обработчик /api/v1 endpoints.
type APIHandler struct {
	migration    MigrationRunner
	users        UserReader
	distributors DistributorManager
	credits      CreditManager
	logger       *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(
	migration MigrationRunner,
	users UserReader,
	distributors DistributorManager,
	credits CreditManager,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		migration:    migration,
		users:        users,
		distributors: distributors,
		credits:      credits,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса, отвергая неизвестные поля.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pagination читает limit и offset из query. Значения вне диапазона
// приводятся к границам.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("limit должен быть целым числом")
		}
		limit = min(max(limit, 1), maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("offset должен быть целым числом")
		}
		offset = max(offset, 0)
	}
	return limit, offset, nil
}

// writeServiceError отображает ошибку сервиса в стандартный ответ.
// Неизвестные ошибки логируются и возвращаются как 500 без деталей.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		apierrors.InsufficientBalance(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+op)
	}
}
