// Пакет model — доменные модели Admin Module Pegasus Tools.
package model

import "time"

// Типы лицензий пользователя.
const (
	LicenseCredits = "Credits License"
	LicenseMonthly = "Monthly License"
)

// User — пользователь Pegasus Tools.
// Хранится в таблице users, ID совпадает с идентификатором в Keycloak.
type User struct {
	// ID — Keycloak user ID
	ID string
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты (логин в Keycloak)
	Email   string
	Phone   string
	Country string
	// Activate — флаг активации в исходном строковом виде
	Activate string
	// Block — флаг блокировки в исходном строковом виде
	Block string
	// Credits — баланс кредитов, десятичное число в виде строки (nil — не задан)
	Credits *string
	// LicenseType — тип лицензии (Credits License, Monthly License)
	LicenseType string
	// ExpiryDate — дата окончания лицензии в исходном формате
	ExpiryDate string
	// HWID — привязка к оборудованию
	HWID string
	// LegacyID — ключ записи в legacy-хранилище (nil для пользователей, созданных после миграции)
	LegacyID *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// UserFilter — параметры выборки списка пользователей.
type UserFilter struct {
	// Search — подстрока имени или email (регистронезависимо)
	Search string
	// LicenseType — точное совпадение типа лицензии
	LicenseType string
	Limit       int
	Offset      int
}
