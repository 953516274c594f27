// users.go — чтение пользователей и их операций для панели администратора.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/repository"
)

// UserService — выборки пользователей и операций.
type UserService struct {
	users      repository.UserRepository
	operations repository.OperationRepository
	logger     *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(users repository.UserRepository, operations repository.OperationRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:      users,
		operations: operations,
		logger:     logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает пользователей по фильтру и общее количество.
func (s *UserService) List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error) {
	items, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListOperations возвращает операции пользователя. Пользователь должен существовать.
func (s *UserService) ListOperations(ctx context.Context, userID string, limit, offset int) ([]*model.Operation, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.operations.ListByUser(ctx, userID, limit, offset)
}
