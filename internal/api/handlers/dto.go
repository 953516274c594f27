// dto.go — JSON-представления доменных моделей для API.
package handlers

import (
	"time"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

type userResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Country     string     `json:"country"`
	Activate    string     `json:"activate"`
	Block       string     `json:"block"`
	Credits     *string    `json:"credits"`
	LicenseType string     `json:"license_type"`
	ExpiryDate  string     `json:"expiry_date"`
	HWID        string     `json:"hwid"`
	LegacyID    *string    `json:"legacy_id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type operationResponse struct {
	ID            string     `json:"id"`
	UID           string     `json:"uid"`
	OperationType string     `json:"operation_type"`
	PhoneModel    string     `json:"phone_model"`
	IMEI          string     `json:"imei"`
	Brand         string     `json:"brand"`
	Credit        string     `json:"credit"`
	OperationDate string     `json:"operation_date"`
	Status        string     `json:"status"`
	OperationLog  string     `json:"operation_log"`
	LegacyID      *string    `json:"legacy_id"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

type distributorResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	CurrentBalance string     `json:"current_balance"`
	Status         string     `json:"status"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

type creditEntryResponse struct {
	ID            string     `json:"id"`
	DistributorID string     `json:"distributor_id"`
	UserID        *string    `json:"user_id"`
	Amount        string     `json:"amount"`
	OperationType string     `json:"operation_type"`
	Description   string     `json:"description"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

type transferResponse struct {
	DistributorID      string              `json:"distributor_id"`
	UserID             string              `json:"user_id"`
	Amount             string              `json:"amount"`
	DistributorBalance string              `json:"distributor_balance"`
	UserCredits        string              `json:"user_credits"`
	Entry              creditEntryResponse `json:"entry"`
}

type addCreditsResponse struct {
	Entry          creditEntryResponse `json:"entry"`
	CurrentBalance string              `json:"current_balance"`
}

// listResponse — страница списка.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// operationListResponse — страница операций без общего количества.
type operationListResponse struct {
	Items  []operationResponse `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// timePtr возвращает nil для нулевого времени (запись ещё не прочитана из БД).
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Country:     u.Country,
		Activate:    u.Activate,
		Block:       u.Block,
		Credits:     u.Credits,
		LicenseType: u.LicenseType,
		ExpiryDate:  u.ExpiryDate,
		HWID:        u.HWID,
		LegacyID:    u.LegacyID,
		CreatedAt:   timePtr(u.CreatedAt),
	}
}

func mapOperation(op *model.Operation) operationResponse {
	return operationResponse{
		ID:            op.ID,
		UID:           op.UID,
		OperationType: op.OperationType,
		PhoneModel:    op.PhoneModel,
		IMEI:          op.IMEI,
		Brand:         op.Brand,
		Credit:        op.Credit,
		OperationDate: op.OperationDate,
		Status:        op.Status,
		OperationLog:  op.OperationLog,
		LegacyID:      op.LegacyID,
		CreatedAt:     timePtr(op.CreatedAt),
	}
}

func mapDistributor(d *model.Distributor) distributorResponse {
	return distributorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		CurrentBalance: d.CurrentBalance.StringFixed(2),
		Status:         d.Status,
		CreatedAt:      timePtr(d.CreatedAt),
		UpdatedAt:      timePtr(d.UpdatedAt),
	}
}

func mapCreditEntry(e *model.CreditEntry) creditEntryResponse {
	return creditEntryResponse{
		ID:            e.ID,
		DistributorID: e.DistributorID,
		UserID:        e.UserID,
		Amount:        e.Amount.StringFixed(2),
		OperationType: e.OperationType,
		Description:   e.Description,
		CreatedAt:     timePtr(e.CreatedAt),
	}
}

// mapSlice применяет f к каждому элементу. Возвращает пустой, а не nil
// срез, чтобы в JSON был [].
func mapSlice[S, D any](items []S, f func(S) D) []D {
	out := make([]D, 0, len(items))
	for _, item := range items {
		out = append(out, f(item))
	}
	return out
}
