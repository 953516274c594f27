// credits.go — движение кредитов дистрибьютора: передача пользователю
// и пополнение баланса. Каждая операция — одна транзакция PostgreSQL
// с блокировкой строк (дистрибьютор, затем пользователь).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/repository"
)

var creditTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pt_credit_transfers_total",
	Help: "Количество передач кредитов от дистрибьютора пользователю",
}, []string{"result"}) // result: success, insufficient_balance, not_found, failed

// CreditTxRunner выполняет функцию в транзакции над репозиториями кредитов.
// Реализуется repository.TxRunner.
type CreditTxRunner interface {
	RunCreditTx(ctx context.Context, fn func(repos repository.CreditRepos) error) error
}

// CreditService — сервис движения кредитов.
type CreditService struct {
	tx     CreditTxRunner
	ledger repository.CreditLedgerRepository
	logger *slog.Logger
}

// NewCreditService создаёт сервис кредитов.
func NewCreditService(tx CreditTxRunner, ledger repository.CreditLedgerRepository, logger *slog.Logger) *CreditService {
	return &CreditService{
		tx:     tx,
		ledger: ledger,
		logger: logger.With(slog.String("component", "credit_service")),
	}
}

// validateAmount проверяет, что сумма положительна и не точнее сотых.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: сумма должна быть больше нуля", ErrValidation)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: сумма указывается с точностью до сотых", ErrValidation)
	}
	return nil
}

// parseCredits разбирает кредиты пользователя. nil и пустая строка — ноль.
func parseCredits(raw *string) (decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("некорректное значение кредитов %q: %w", *raw, err)
	}
	return d, nil
}

// Transfer передаёт amount кредитов от дистрибьютора пользователю.
// Ошибки: ErrValidation, ErrNotFound, ErrInsufficientBalance — до каких-либо
// изменений; ErrTransferFailed — транзакция откачена целиком.
func (s *CreditService) Transfer(
	ctx context.Context,
	distributorID, userID string,
	amount decimal.Decimal,
	description string,
) (*model.TransferResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id обязателен", ErrValidation)
	}
	if description == "" {
		description = fmt.Sprintf("Передано %s кредитов пользователю %s", amount.String(), userID)
	}

	result := &model.TransferResult{
		DistributorID: distributorID,
		UserID:        userID,
		Amount:        amount,
	}

	err := s.tx.RunCreditTx(ctx, func(repos repository.CreditRepos) error {
		balance, err := repos.Distributors.GetBalanceForUpdate(ctx, distributorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: дистрибьютор %s", ErrNotFound, distributorID)
			}
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: баланс %s, запрошено %s", ErrInsufficientBalance, balance, amount)
		}

		rawCredits, err := repos.Users.GetCreditsForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
			}
			return err
		}
		credits, err := parseCredits(rawCredits)
		if err != nil {
			return err
		}

		result.UserCredits = credits.Add(amount).String()
		if err := repos.Users.UpdateCredits(ctx, userID, result.UserCredits); err != nil {
			return err
		}

		result.DistributorBalance = balance.Sub(amount)
		if err := repos.Distributors.UpdateBalance(ctx, distributorID, result.DistributorBalance); err != nil {
			return err
		}

		uid := userID
		result.Entry = &model.CreditEntry{
			ID:            uuid.New().String(),
			DistributorID: distributorID,
			UserID:        &uid,
			Amount:        amount.Neg(),
			OperationType: model.CreditAssign,
			Description:   description,
		}
		return repos.Credits.Append(ctx, result.Entry)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			creditTransfersTotal.WithLabelValues("not_found").Inc()
			return nil, err
		case errors.Is(err, ErrInsufficientBalance):
			creditTransfersTotal.WithLabelValues("insufficient_balance").Inc()
			return nil, err
		}
		creditTransfersTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Передача кредитов не выполнена",
			slog.String("distributor_id", distributorID),
			slog.String("user_id", userID),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err) //nolint:errorlint // намеренный двойной wrap
	}

	creditTransfersTotal.WithLabelValues("success").Inc()
	s.logger.Info("Кредиты переданы",
		slog.String("distributor_id", distributorID),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("distributor_balance", result.DistributorBalance.String()),
		slog.String("user_credits", result.UserCredits),
	)

	return result, nil
}

// AddCredits пополняет баланс дистрибьютора и пишет запись журнала "add".
// Возвращает запись журнала и новый баланс.
func (s *CreditService) AddCredits(
	ctx context.Context,
	distributorID string,
	amount decimal.Decimal,
	description string,
) (*model.CreditEntry, decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return nil, decimal.Zero, err
	}
	if description == "" {
		description = fmt.Sprintf("Пополнение баланса на %s кредитов", amount.String())
	}

	var entry *model.CreditEntry
	var newBalance decimal.Decimal

	err := s.tx.RunCreditTx(ctx, func(repos repository.CreditRepos) error {
		balance, err := repos.Distributors.GetBalanceForUpdate(ctx, distributorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: дистрибьютор %s", ErrNotFound, distributorID)
			}
			return err
		}

		newBalance = balance.Add(amount)
		if err := repos.Distributors.UpdateBalance(ctx, distributorID, newBalance); err != nil {
			return err
		}

		entry = &model.CreditEntry{
			ID:            uuid.New().String(),
			DistributorID: distributorID,
			Amount:        amount,
			OperationType: model.CreditAdd,
			Description:   description,
		}
		return repos.Credits.Append(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, err
		}
		return nil, decimal.Zero, fmt.Errorf("пополнение баланса: %w", err)
	}

	s.logger.Info("Баланс дистрибьютора пополнен",
		slog.String("distributor_id", distributorID),
		slog.String("amount", amount.String()),
		slog.String("balance", newBalance.String()),
	)

	return entry, newBalance, nil
}

// ListLedger возвращает записи журнала дистрибьютора и их общее количество.
func (s *CreditService) ListLedger(ctx context.Context, distributorID string, limit, offset int) ([]*model.CreditEntry, int, error) {
	entries, err := s.ledger.ListByDistributor(ctx, distributorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение журнала: %w", err)
	}
	total, err := s.ledger.CountByDistributor(ctx, distributorID)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт журнала: %w", err)
	}
	return entries, total, nil
}
