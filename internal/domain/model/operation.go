package model

import "time"

// Operation — операция с устройством (разблокировка, прошивка и т.п.).
// Хранится в таблице operations.
type Operation struct {
	// ID — UUID записи
	ID string
	// UID — идентификатор пользователя. После миграции — Keycloak ID,
	// если сопоставление не найдено — исходный legacy UID.
	UID           string
	OperationType string
	PhoneModel    string
	IMEI          string
	Brand         string
	// Credit — стоимость операции в кредитах (строка)
	Credit        string
	OperationDate string
	Status        string
	OperationLog  string
	// LegacyID — ключ записи в legacy-хранилище
	LegacyID  *string
	CreatedAt time.Time
}
