package repository

import (
	"context"
	"fmt"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

// OperationRepository — доступ к таблице operations.
type OperationRepository interface {
	// Create вставляет операцию. ID должен быть заполнен.
	Create(ctx context.Context, op *model.Operation) error
	// ListByUser возвращает операции пользователя, новые первыми.
	ListByUser(ctx context.Context, uid string, limit, offset int) ([]*model.Operation, error)
}

type operationRepo struct {
	db DBTX
}

// NewOperationRepository создаёт репозиторий операций.
func NewOperationRepository(db DBTX) OperationRepository {
	return &operationRepo{db: db}
}

func (r *operationRepo) Create(ctx context.Context, op *model.Operation) error {
	query := `
		INSERT INTO operations (id, uid, operation_type, phone_model, imei, brand,
			credit, operation_date, status, operation_log, legacy_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		op.ID, op.UID, op.OperationType, op.PhoneModel, op.IMEI, op.Brand,
		op.Credit, op.OperationDate, op.Status, op.OperationLog, op.LegacyID,
	).Scan(&op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: операция %s уже существует", ErrConflict, op.ID)
		}
		return fmt.Errorf("ошибка создания операции: %w", err)
	}
	return nil
}

func (r *operationRepo) ListByUser(ctx context.Context, uid string, limit, offset int) ([]*model.Operation, error) {
	query := `
		SELECT id, uid, operation_type, phone_model, imei, brand, credit,
			operation_date, status, operation_log, legacy_id, created_at
		FROM operations
		WHERE uid = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, uid, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения операций: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		op := &model.Operation{}
		if err := rows.Scan(
			&op.ID, &op.UID, &op.OperationType, &op.PhoneModel, &op.IMEI, &op.Brand, &op.Credit,
			&op.OperationDate, &op.Status, &op.OperationLog, &op.LegacyID, &op.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования операции: %w", err)
		}
		result = append(result, op)
	}
	return result, rows.Err()
}
