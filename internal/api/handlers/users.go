// users.go — обработчики /api/v1/users: пользователи, лицензии и операции.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pegasustools/admin-module/internal/api/errors"
	"github.com/pegasustools/admin-module/internal/domain/model"
)

// ListUsers — GET /api/v1/users?search=&license_type=&limit=&offset=.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	filter := model.UserFilter{
		Search:      r.URL.Query().Get("search"),
		LicenseType: r.URL.Query().Get("license_type"),
		Limit:       limit,
		Offset:      offset,
	}

	users, total, err := h.users.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "получение списка пользователей")
		return
	}

	writeJSON(w, http.StatusOK, listResponse[userResponse]{
		Items:  mapSlice(users, mapUser),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение пользователя")
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// ListUserOperations — GET /api/v1/users/{id}/operations.
func (h *APIHandler) ListUserOperations(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ops, err := h.users.ListOperations(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение операций пользователя")
		return
	}

	writeJSON(w, http.StatusOK, operationListResponse{
		Items:  mapSlice(ops, mapOperation),
		Limit:  limit,
		Offset: offset,
	})
}
