package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Create вставляет пользователя. ID должен быть заполнен (Keycloak ID).
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// List возвращает пользователей по фильтру, новые первыми.
	List(ctx context.Context, filter model.UserFilter) ([]*model.User, error)
	// Count возвращает количество пользователей по фильтру (без limit/offset).
	Count(ctx context.Context, filter model.UserFilter) (int, error)
	// GetCreditsForUpdate блокирует строку пользователя и возвращает кредиты
	// (nil, если не заданы).
	GetCreditsForUpdate(ctx context.Context, id string) (*string, error)
	// UpdateCredits записывает новое значение кредитов.
	UpdateCredits(ctx context.Context, id, credits string) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, name, email, phone, country, activate, block, credits,
	license_type, expiry_date, hwid, legacy_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Country, &u.Activate, &u.Block, &u.Credits,
		&u.LicenseType, &u.ExpiryDate, &u.HWID, &u.LegacyID, &u.CreatedAt,
	)
	return u, err
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, country, activate, block, credits,
			license_type, expiry_date, hwid, legacy_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Name, u.Email, u.Phone, u.Country, u.Activate, u.Block, u.Credits,
		u.LicenseType, u.ExpiryDate, u.HWID, u.LegacyID,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь %s уже существует", ErrConflict, u.ID)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

// likeEscaper экранирует спецсимволы шаблона LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// userWhere строит WHERE по фильтру и возвращает номер следующего аргумента.
func userWhere(filter model.UserFilter) (string, []any, int) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Search != "" {
		conditions = append(conditions,
			fmt.Sprintf(`(name ILIKE $%d ESCAPE '\' OR email ILIKE $%d ESCAPE '\')`, argNum, argNum))
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		argNum++
	}
	if filter.LicenseType != "" {
		conditions = append(conditions, fmt.Sprintf("license_type = $%d", argNum))
		args = append(args, filter.LicenseType)
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args, argNum
}

func (r *userRepo) List(ctx context.Context, filter model.UserFilter) ([]*model.User, error) {
	where, args, argNum := userWhere(filter)

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, userColumns, where, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context, filter model.UserFilter) (int, error) {
	where, args, _ := userWhere(filter)

	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) GetCreditsForUpdate(ctx context.Context, id string) (*string, error) {
	var credits *string
	err := r.db.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки пользователя: %w", err)
	}
	return credits, nil
}

func (r *userRepo) UpdateCredits(ctx context.Context, id, credits string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET credits = $2 WHERE id = $1`, id, credits)
	if err != nil {
		return fmt.Errorf("ошибка обновления кредитов пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
