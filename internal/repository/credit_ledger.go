package repository

import (
	"context"
	"fmt"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

// CreditLedgerRepository — журнал distributor_credits (только вставка).
type CreditLedgerRepository interface {
	// Append добавляет запись журнала. ID должен быть заполнен.
	Append(ctx context.Context, e *model.CreditEntry) error
	// ListByDistributor возвращает записи дистрибьютора, новые первыми.
	ListByDistributor(ctx context.Context, distributorID string, limit, offset int) ([]*model.CreditEntry, error)
	// CountByDistributor возвращает количество записей дистрибьютора.
	CountByDistributor(ctx context.Context, distributorID string) (int, error)
}

type creditLedgerRepo struct {
	db DBTX
}

// NewCreditLedgerRepository создаёт репозиторий журнала кредитов.
func NewCreditLedgerRepository(db DBTX) CreditLedgerRepository {
	return &creditLedgerRepo{db: db}
}

func (r *creditLedgerRepo) Append(ctx context.Context, e *model.CreditEntry) error {
	query := `
		INSERT INTO distributor_credits (id, distributor_id, user_id, amount, operation_type, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.DistributorID, e.UserID, e.Amount.String(), e.OperationType, e.Description,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал кредитов: %w", err)
	}
	return nil
}

func (r *creditLedgerRepo) ListByDistributor(ctx context.Context, distributorID string, limit, offset int) ([]*model.CreditEntry, error) {
	query := `
		SELECT id, distributor_id, user_id, amount::text, operation_type, description, created_at
		FROM distributor_credits
		WHERE distributor_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, distributorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала кредитов: %w", err)
	}
	defer rows.Close()

	var result []*model.CreditEntry
	for rows.Next() {
		e := &model.CreditEntry{}
		var amount string
		if err := rows.Scan(&e.ID, &e.DistributorID, &e.UserID, &amount,
			&e.OperationType, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		if e.Amount, err = parseNumeric("amount", amount); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *creditLedgerRepo) CountByDistributor(ctx context.Context, distributorID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM distributor_credits WHERE distributor_id = $1`, distributorID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
