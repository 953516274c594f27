// migration.go — POST /api/v1/migration/firebase.
// Формат ответа отличается от остальных endpoints:
// {"success": true, "stats": {...}} или {"success": false, "error": "..."}.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/pegasustools/admin-module/internal/api/errors"
	"github.com/pegasustools/admin-module/internal/api/middleware"
	"github.com/pegasustools/admin-module/internal/service"
)

type migrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // G117: учётные данные запроса
}

// RunMigration запускает миграцию от имени администратора legacy-хранилища.
func (h *APIHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	// Лишние поля в теле допускаются
	var req migrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteMigrationError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		apierrors.WriteMigrationError(w, http.StatusBadRequest, "Email и пароль обязательны")
		return
	}

	h.logger.Info("Запрошена миграция из legacy-хранилища",
		slog.String("operator", middleware.SubjectFromContext(r.Context())),
		slog.String("legacy_admin", req.Email),
	)

	// Миграция не прерывается на середине при обрыве соединения клиента
	stats, err := h.migration.Run(context.WithoutCancel(r.Context()), req.Email, req.Password)
	if err != nil {
		status, message := migrationErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Миграция завершилась ошибкой", slog.String("error", err.Error()))
		}
		apierrors.WriteMigrationError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, apierrors.MigrationResponse{Success: true, Stats: stats})
}

// migrationErrorStatus возвращает HTTP-статус и сообщение для ошибки миграции.
func migrationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrAuthentication):
		return http.StatusUnauthorized, "Ошибка аутентификации в legacy-хранилище"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrIDPUnavailable):
		return http.StatusServiceUnavailable, "Keycloak недоступен"
	case errors.Is(err, service.ErrConfiguration), errors.Is(err, service.ErrFetch):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "Внутренняя ошибка миграции"
	}
}
