package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы дистрибьютора.
const (
	DistributorActive    = "active"
	DistributorSuspended = "suspended"
)

// Типы записей журнала кредитов.
const (
	// CreditAssign — передача кредитов пользователю (отрицательная сумма)
	CreditAssign = "assign"
	// CreditAdd — пополнение баланса дистрибьютора (положительная сумма)
	CreditAdd = "add"
)

// Distributor — реселлер с балансом кредитов.
// Хранится в таблице distributors.
type Distributor struct {
	ID    string
	Name  string
	Email string
	// CurrentBalance — текущий баланс, не может быть отрицательным
	CurrentBalance decimal.Decimal
	// Status — active или suspended
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditEntry — запись журнала distributor_credits. Только вставка.
type CreditEntry struct {
	ID            string
	DistributorID string
	// UserID — получатель кредитов (nil для пополнений)
	UserID *string
	// Amount — изменение баланса дистрибьютора со знаком
	Amount        decimal.Decimal
	OperationType string
	Description   string
	CreatedAt     time.Time
}

// TransferResult — итог передачи кредитов пользователю.
type TransferResult struct {
	DistributorID string
	UserID        string
	Amount        decimal.Decimal
	// DistributorBalance — баланс дистрибьютора после списания
	DistributorBalance decimal.Decimal
	// UserCredits — кредиты пользователя после зачисления (строка)
	UserCredits string
	// Entry — созданная запись журнала
	Entry *CreditEntry
}
