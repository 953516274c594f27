// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс или уже выполняющаяся операция).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")

	// --- Миграция ---

	// ErrConfiguration — не заданы параметры legacy-хранилища или секрет Keycloak.
	ErrConfiguration = errors.New("сервер не сконфигурирован для миграции")
	// ErrAuthentication — legacy-хранилище отклонило учётные данные или недоступно.
	ErrAuthentication = errors.New("ошибка аутентификации в legacy-хранилище")
	// ErrFetch — коллекция legacy-хранилища отсутствует или не загружена.
	ErrFetch = errors.New("ошибка загрузки данных из legacy-хранилища")
	// ErrRecord — ошибка обработки отдельной записи. Учитывается в статистике,
	// наружу не возвращается.
	ErrRecord = errors.New("ошибка миграции записи")

	// --- Кредиты ---

	// ErrInsufficientBalance — баланс дистрибьютора меньше суммы передачи.
	ErrInsufficientBalance = errors.New("недостаточно кредитов на балансе дистрибьютора")
	// ErrTransferFailed — передача не выполнена, транзакция откачена.
	ErrTransferFailed = errors.New("передача кредитов не выполнена")
)
