// distributors.go — обработчики /api/v1/distributors: дистрибьюторы,
// пополнение баланса, журнал и передача кредитов пользователям.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apierrors "github.com/pegasustools/admin-module/internal/api/errors"
	"github.com/pegasustools/admin-module/internal/api/middleware"
	"github.com/pegasustools/admin-module/internal/domain/model"
)

type createDistributorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type addCreditsRequest struct {
	// decimal.Decimal принимает и строку, и число JSON
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transferRequest struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ListDistributors — GET /api/v1/distributors?status=&limit=&offset=.
func (h *APIHandler) ListDistributors(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		if s != model.DistributorActive && s != model.DistributorSuspended {
			apierrors.ValidationError(w, "status: допустимы active, suspended")
			return
		}
		status = &s
	}

	items, total, err := h.distributors.List(r.Context(), status, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение списка дистрибьюторов")
		return
	}

	writeJSON(w, http.StatusOK, listResponse[distributorResponse]{
		Items:  mapSlice(items, mapDistributor),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateDistributor — POST /api/v1/distributors.
func (h *APIHandler) CreateDistributor(w http.ResponseWriter, r *http.Request) {
	var req createDistributorRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	d, err := h.distributors.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeServiceError(w, err, "создание дистрибьютора")
		return
	}

	writeJSON(w, http.StatusCreated, mapDistributor(d))
}

// GetDistributor — GET /api/v1/distributors/{id}.
func (h *APIHandler) GetDistributor(w http.ResponseWriter, r *http.Request) {
	d, err := h.distributors.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение дистрибьютора")
		return
	}
	writeJSON(w, http.StatusOK, mapDistributor(d))
}

// ListDistributorCredits — GET /api/v1/distributors/{id}/credits.
func (h *APIHandler) ListDistributorCredits(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.distributors.Get(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "получение дистрибьютора")
		return
	}

	entries, total, err := h.credits.ListLedger(r.Context(), id, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение журнала кредитов")
		return
	}

	writeJSON(w, http.StatusOK, listResponse[creditEntryResponse]{
		Items:  mapSlice(entries, mapCreditEntry),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// AddDistributorCredits — POST /api/v1/distributors/{id}/credits.
func (h *APIHandler) AddDistributorCredits(w http.ResponseWriter, r *http.Request) {
	var req addCreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	entry, balance, err := h.credits.AddCredits(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Description)
	if err != nil {
		h.writeServiceError(w, err, "пополнение баланса")
		return
	}

	h.logger.Info("Баланс пополнен оператором",
		"operator", middleware.SubjectFromContext(r.Context()),
		"distributor_id", entry.DistributorID,
		"amount", entry.Amount.String(),
	)

	writeJSON(w, http.StatusCreated, addCreditsResponse{
		Entry:          mapCreditEntry(entry),
		CurrentBalance: balance.StringFixed(2),
	})
}

// TransferCredits — POST /api/v1/distributors/{id}/transfers.
// 409 INSUFFICIENT_BALANCE — баланса недостаточно, ничего не изменено.
func (h *APIHandler) TransferCredits(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	res, err := h.credits.Transfer(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Amount, req.Description)
	if err != nil {
		h.writeServiceError(w, err, "передача кредитов")
		return
	}

	h.logger.Info("Кредиты переданы оператором",
		"operator", middleware.SubjectFromContext(r.Context()),
		"distributor_id", res.DistributorID,
		"user_id", res.UserID,
		"amount", res.Amount.String(),
	)

	writeJSON(w, http.StatusCreated, transferResponse{
		DistributorID:      res.DistributorID,
		UserID:             res.UserID,
		Amount:             res.Amount.String(),
		DistributorBalance: res.DistributorBalance.StringFixed(2),
		UserCredits:        res.UserCredits,
		Entry:              mapCreditEntry(res.Entry),
	})
}
