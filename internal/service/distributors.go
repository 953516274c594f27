// distributors.go — сервис управления дистрибьюторами.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/repository"
)

// DistributorService — CRUD дистрибьюторов.
type DistributorService struct {
	repo   repository.DistributorRepository
	logger *slog.Logger
}

// NewDistributorService создаёт сервис дистрибьюторов.
func NewDistributorService(repo repository.DistributorRepository, logger *slog.Logger) *DistributorService {
	return &DistributorService{
		repo:   repo,
		logger: logger.With(slog.String("component", "distributor_service")),
	}
}

// Create регистрирует дистрибьютора с нулевым балансом.
// Начальное пополнение выполняется через CreditService.AddCredits,
// чтобы каждое изменение баланса было в журнале.
func (s *DistributorService) Create(ctx context.Context, name, email string) (*model.Distributor, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name и email обязательны", ErrValidation)
	}

	d := &model.Distributor{
		ID:             uuid.New().String(),
		Name:           name,
		Email:          email,
		CurrentBalance: decimal.Zero,
		Status:         model.DistributorActive,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: дистрибьютор с email '%s' уже существует", ErrConflict, email)
		}
		return nil, fmt.Errorf("сохранение дистрибьютора: %w", err)
	}

	s.logger.Info("Дистрибьютор создан",
		slog.String("distributor_id", d.ID),
		slog.String("email", email),
	)

	return d, nil
}

// Get возвращает дистрибьютора по ID.
func (s *DistributorService) Get(ctx context.Context, id string) (*model.Distributor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List возвращает дистрибьюторов и их общее количество.
func (s *DistributorService) List(ctx context.Context, status *string, limit, offset int) ([]*model.Distributor, int, error) {
	items, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
