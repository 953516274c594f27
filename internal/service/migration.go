// migration.go — однократная миграция пользователей и операций
// из legacy-хранилища (Firebase) в Keycloak + PostgreSQL.
//
// Порядок:
//  1. Проверка конфигурации и доступа к Keycloak Admin API
//  2. Вход администратора в legacy-хранилище
//  3. users.json → для каждой записи: пользователь в Keycloak + строка users
//     (при ошибке вставки пользователь в Keycloak удаляется)
//  4. operations.json → замена UID на Keycloak ID по карте из шага 3
//
// Повторный запуск создаёт дубликаты: ключа дедупликации нет.
//
// Prometheus-метрики:
//   - pt_migration_records_total — обработанные записи (entity, result)
//   - pt_migration_duration_seconds — длительность запуска
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pegasustools/admin-module/internal/config"
	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/keycloak"
	"github.com/pegasustools/admin-module/internal/legacy"
	"github.com/pegasustools/admin-module/internal/repository"
)

// Prometheus-метрики миграции.
var (
	migrationRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pt_migration_records_total",
		Help: "Количество записей, обработанных миграцией",
	}, []string{"entity", "result"}) // entity: users, operations; result: migrated, error

	migrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pt_migration_duration_seconds",
		Help:    "Длительность запуска миграции из legacy-хранилища",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s … ~34m
	})
)

// IdentityProvider — операции Keycloak, нужные миграции.
type IdentityProvider interface {
	CheckAccess(ctx context.Context) error
	CreateUser(ctx context.Context, u keycloak.NewUser) (string, error)
	DeleteUser(ctx context.Context, id string) error
}

// LegacyStore — операции legacy-хранилища.
type LegacyStore interface {
	SignIn(ctx context.Context, email, password string) (*legacy.Session, error)
	FetchUsers(ctx context.Context, idToken string) (model.LegacyRecords, error)
	FetchOperations(ctx context.Context, idToken string) (model.LegacyRecords, error)
}

// MigrationService — сервис миграции из legacy-хранилища.
type MigrationService struct {
	settings   config.MigrationSettings
	legacy     LegacyStore
	idp        IdentityProvider
	users      repository.UserRepository
	operations repository.OperationRepository
	logger     *slog.Logger

	// running не допускает параллельных запусков
	running sync.Mutex
}

// NewMigrationService создаёт сервис миграции.
func NewMigrationService(
	settings config.MigrationSettings,
	legacyStore LegacyStore,
	idp IdentityProvider,
	users repository.UserRepository,
	operations repository.OperationRepository,
	logger *slog.Logger,
) *MigrationService {
	return &MigrationService{
		settings:   settings,
		legacy:     legacyStore,
		idp:        idp,
		users:      users,
		operations: operations,
		logger:     logger.With(slog.String("component", "migration")),
	}
}

// Run выполняет миграцию от имени администратора legacy-хранилища.
// Фатальные ошибки: ErrConfiguration, ErrIDPUnavailable, ErrAuthentication, ErrFetch.
// Ошибки отдельных записей учитываются в статистике.
func (s *MigrationService) Run(ctx context.Context, adminEmail, adminPassword string) (*model.MigrationStats, error) {
	if strings.TrimSpace(adminEmail) == "" || adminPassword == "" {
		return nil, fmt.Errorf("%w: email и password обязательны", ErrValidation)
	}
	if err := s.checkConfiguration(); err != nil {
		return nil, err
	}

	if !s.running.TryLock() {
		return nil, fmt.Errorf("%w: миграция уже выполняется", ErrConflict)
	}
	defer s.running.Unlock()

	if err := s.idp.CheckAccess(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	}

	start := time.Now()
	defer func() { migrationDuration.Observe(time.Since(start).Seconds()) }()

	session, err := s.legacy.SignIn(ctx, adminEmail, adminPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err) //nolint:errorlint // намеренный двойной wrap
	}

	legacyUsers, err := s.legacy.FetchUsers(ctx, session.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: users: %w", ErrFetch, err) //nolint:errorlint // намеренный двойной wrap
	}
	if legacyUsers == nil {
		return nil, fmt.Errorf("%w: коллекция users отсутствует", ErrFetch)
	}

	s.logger.Info("Миграция запущена",
		slog.String("admin", adminEmail),
		slog.Int("users", len(legacyUsers)),
	)

	stats := &model.MigrationStats{}
	idMap := s.migrateUsers(ctx, legacyUsers, &stats.Users)

	legacyOps, err := s.legacy.FetchOperations(ctx, session.IDToken)
	if err != nil {
		s.logger.Warn("Не удалось загрузить operations, этап пропущен",
			slog.String("error", err.Error()),
		)
		s.logFinished(stats, start)
		return stats, nil
	}
	if legacyOps == nil {
		s.logger.Info("Коллекция operations отсутствует")
		s.logFinished(stats, start)
		return stats, nil
	}

	s.migrateOperations(ctx, legacyOps, idMap, &stats.Operations)
	s.logFinished(stats, start)

	return stats, nil
}

// checkConfiguration проверяет, что заданы все параметры миграции.
func (s *MigrationService) checkConfiguration() error {
	var missing []string
	if s.settings.LegacyDatabaseURL == "" {
		missing = append(missing, "PT_LEGACY_DATABASE_URL")
	}
	if s.settings.LegacyAPIKey == "" {
		missing = append(missing, "PT_LEGACY_API_KEY")
	}
	if s.settings.KeycloakClientSecret == "" {
		missing = append(missing, "PT_KEYCLOAK_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: не заданы %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// migrateUsers переносит пользователей в порядке ключей и возвращает карту
// legacy-идентификатор → Keycloak ID (по ключу записи и по её uid).
func (s *MigrationService) migrateUsers(
	ctx context.Context,
	legacyUsers model.LegacyRecords,
	st *model.EntityStats,
) map[string]string {
	idMap := make(map[string]string, len(legacyUsers))

	for _, key := range slices.Sorted(maps.Keys(legacyUsers)) {
		st.Total++

		var rec model.LegacyUser
		err := model.DecodeLegacyRecord(legacyUsers[key], &rec)
		if err != nil {
			err = fmt.Errorf("%w: разбор записи: %w", ErrRecord, err) //nolint:errorlint // намеренный двойной wrap
		}

		var newID string
		if err == nil {
			newID, err = s.migrateUser(ctx, key, rec)
		}
		if err != nil {
			st.Errors++
			migrationRecordsTotal.WithLabelValues("users", "error").Inc()
			s.logger.Warn("Пользователь не перенесён",
				slog.String("legacy_key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		st.Migrated++
		migrationRecordsTotal.WithLabelValues("users", "migrated").Inc()
		idMap[key] = newID
		if uid := rec.UID.String(); uid != "" {
			idMap[uid] = newID
		}
	}

	return idMap
}

// migrateUser создаёт пользователя в Keycloak и строку users.
// При ошибке вставки созданный пользователь Keycloak удаляется.
func (s *MigrationService) migrateUser(ctx context.Context, key string, rec model.LegacyUser) (string, error) {
	email, err := normalizeEmail(rec.Email.String())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecord, err) //nolint:errorlint // намеренный двойной wrap
	}

	password := rec.Password.String()
	temporary := false
	if password == "" {
		password, err = s.fallbackPassword()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRecord, err) //nolint:errorlint // намеренный двойной wrap
		}
		temporary = true
		s.logger.Info("У пользователя нет пароля, назначен временный",
			slog.String("legacy_key", key),
		)
	}

	newID, err := s.idp.CreateUser(ctx, keycloak.NewUser{
		Email:             email,
		Password:          password,
		DisplayName:       rec.Name.String(),
		Attributes:        map[string][]string{"legacy_id": {key}},
		TemporaryPassword: temporary,
	})
	if err != nil {
		return "", fmt.Errorf("%w: создание в Keycloak: %w", ErrRecord, err) //nolint:errorlint // намеренный двойной wrap
	}

	legacyID := key
	user := &model.User{
		ID:          newID,
		Name:        rec.Name.String(),
		Email:       email,
		Phone:       rec.Phone.String(),
		Country:     rec.Country.String(),
		Activate:    rec.Activate.String(),
		Block:       rec.Block.String(),
		Credits:     rec.CreditsPointer(),
		LicenseType: rec.LicenseType.String(),
		ExpiryDate:  rec.ExpiryDate.String(),
		HWID:        rec.HWID.String(),
		LegacyID:    &legacyID,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if delErr := s.idp.DeleteUser(ctx, newID); delErr != nil {
			s.logger.Error("Не удалось удалить пользователя Keycloak после ошибки вставки",
				slog.String("legacy_key", key),
				slog.String("keycloak_id", newID),
				slog.String("error", delErr.Error()),
			)
		}
		return "", fmt.Errorf("%w: вставка users: %w", ErrRecord, err) //nolint:errorlint // намеренный двойной wrap
	}

	return newID, nil
}

// migrateOperations переносит операции, заменяя UID по карте idMap.
// Несопоставленный UID сохраняется как есть и ошибкой не считается.
func (s *MigrationService) migrateOperations(
	ctx context.Context,
	legacyOps model.LegacyRecords,
	idMap map[string]string,
	st *model.EntityStats,
) {
	for _, key := range slices.Sorted(maps.Keys(legacyOps)) {
		st.Total++

		var rec model.LegacyOperation
		if err := model.DecodeLegacyRecord(legacyOps[key], &rec); err != nil {
			st.Errors++
			migrationRecordsTotal.WithLabelValues("operations", "error").Inc()
			s.logger.Warn("Операция не разобрана",
				slog.String("legacy_key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		uid := rec.UID.String()
		if newID, ok := idMap[uid]; ok {
			uid = newID
		} else {
			s.logger.Warn("UID операции не сопоставлен, сохранён исходный",
				slog.String("legacy_key", key),
				slog.String("uid", uid),
			)
		}

		legacyID := key
		op := &model.Operation{
			ID:            uuid.New().String(),
			UID:           uid,
			OperationType: rec.OperationType.String(),
			PhoneModel:    rec.PhoneModel.String(),
			IMEI:          rec.IMEI.String(),
			Brand:         rec.Brand.String(),
			Credit:        rec.Credit.String(),
			OperationDate: rec.OperationDate.String(),
			Status:        rec.Status.String(),
			OperationLog:  rec.OperationLog.String(),
			LegacyID:      &legacyID,
		}

		if err := s.operations.Create(ctx, op); err != nil {
			st.Errors++
			migrationRecordsTotal.WithLabelValues("operations", "error").Inc()
			s.logger.Warn("Операция не перенесена",
				slog.String("legacy_key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		st.Migrated++
		migrationRecordsTotal.WithLabelValues("operations", "migrated").Inc()
	}
}

func (s *MigrationService) logFinished(stats *model.MigrationStats, start time.Time) {
	s.logger.Info("Миграция завершена",
		slog.Int("users_total", stats.Users.Total),
		slog.Int("users_migrated", stats.Users.Migrated),
		slog.Int("users_errors", stats.Users.Errors),
		slog.Int("operations_total", stats.Operations.Total),
		slog.Int("operations_migrated", stats.Operations.Migrated),
		slog.Int("operations_errors", stats.Operations.Errors),
		slog.Duration("duration", time.Since(start)),
	)
}

// fallbackPassword возвращает временный пароль для пользователя без пароля:
// из конфигурации либо случайный (24 символа base64url).
func (s *MigrationService) fallbackPassword() (string, error) {
	if s.settings.FallbackPassword != "" {
		return s.settings.FallbackPassword, nil
	}
	buf := make([]byte, 18)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("генерация временного пароля: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// normalizeEmail проверяет, что строка — одиночный адрес без имени.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("email не задан")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("некорректный email %q", raw)
	}
	return raw, nil
}
