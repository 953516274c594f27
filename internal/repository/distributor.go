package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

// DistributorRepository — доступ к таблице distributors.
type DistributorRepository interface {
	// Create создаёт дистрибьютора. ID должен быть заполнен.
	Create(ctx context.Context, d *model.Distributor) error
	// GetByID возвращает дистрибьютора по UUID.
	GetByID(ctx context.Context, id string) (*model.Distributor, error)
	// List возвращает дистрибьюторов, опционально фильтруя по статусу.
	List(ctx context.Context, status *string, limit, offset int) ([]*model.Distributor, error)
	// Count возвращает количество дистрибьюторов с фильтром.
	Count(ctx context.Context, status *string) (int, error)
	// GetBalanceForUpdate блокирует строку дистрибьютора и возвращает баланс.
	GetBalanceForUpdate(ctx context.Context, id string) (decimal.Decimal, error)
	// UpdateBalance записывает новый баланс.
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

type distributorRepo struct {
	db DBTX
}

// NewDistributorRepository создаёт репозиторий дистрибьюторов.
func NewDistributorRepository(db DBTX) DistributorRepository {
	return &distributorRepo{db: db}
}

const distributorColumns = `id, name, email, current_balance::text, status, created_at, updated_at`

func scanDistributor(row pgx.Row) (*model.Distributor, error) {
	d := &model.Distributor{}
	var balance string
	if err := row.Scan(&d.ID, &d.Name, &d.Email, &balance, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := parseNumeric("current_balance", balance)
	if err != nil {
		return nil, err
	}
	d.CurrentBalance = b
	return d, nil
}

func (r *distributorRepo) Create(ctx context.Context, d *model.Distributor) error {
	query := `
		INSERT INTO distributors (id, name, email, current_balance, status)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.Name, d.Email, d.CurrentBalance.String(), d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s уже зарегистрирован", ErrConflict, d.Email)
		}
		return fmt.Errorf("ошибка создания дистрибьютора: %w", err)
	}
	return nil
}

func (r *distributorRepo) GetByID(ctx context.Context, id string) (*model.Distributor, error) {
	query := `SELECT ` + distributorColumns + ` FROM distributors WHERE id = $1`

	d, err := scanDistributor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения дистрибьютора: %w", err)
	}
	return d, nil
}

func (r *distributorRepo) List(ctx context.Context, status *string, limit, offset int) ([]*model.Distributor, error) {
	query := `
		SELECT ` + distributorColumns + `
		FROM distributors
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка дистрибьюторов: %w", err)
	}
	defer rows.Close()

	var result []*model.Distributor
	for rows.Next() {
		d, err := scanDistributor(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования дистрибьютора: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *distributorRepo) Count(ctx context.Context, status *string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM distributors WHERE ($1::text IS NULL OR status = $1)`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта дистрибьюторов: %w", err)
	}
	return count, nil
}

func (r *distributorRepo) GetBalanceForUpdate(ctx context.Context, id string) (decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRow(ctx,
		`SELECT current_balance::text FROM distributors WHERE id = $1 FOR UPDATE`, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("ошибка блокировки дистрибьютора: %w", err)
	}
	return parseNumeric("current_balance", raw)
}

func (r *distributorRepo) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE distributors SET current_balance = $2::numeric, updated_at = NOW() WHERE id = $1`,
		id, balance.String(),
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления баланса дистрибьютора: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
