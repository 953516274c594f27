package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrLegacyRecordShape — запись коллекции не является JSON-объектом.
var ErrLegacyRecordShape = errors.New("запись legacy-хранилища не является объектом")

// LegacyRecords — коллекция legacy-хранилища: ключ записи → сырой JSON записи.
// Записи разбираются по одной, чтобы повреждённая запись не ломала коллекцию.
type LegacyRecords map[string]json.RawMessage

// EntityStats — счётчики миграции одной сущности.
type EntityStats struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Errors   int `json:"errors"`
}

// MigrationStats — итог одного запуска миграции. Не сохраняется в БД.
type MigrationStats struct {
	Users      EntityStats `json:"users"`
	Operations EntityStats `json:"operations"`
}

// FlexString — скаляр legacy-хранилища. В Firebase флаги и кредиты
// встречаются как строки, числа и bool, все варианты приводятся к строке.
type FlexString string

// UnmarshalJSON принимает string, number, bool и null. Объект или массив
// сохраняется как компактный JSON-текст.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*f = FlexString(buf.String())
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*f = FlexString(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexString(n.String())
	}
	return nil
}

// String возвращает значение как строку.
func (f FlexString) String() string {
	return string(f)
}

// LegacyUser — запись users.json из Firebase Realtime Database.
type LegacyUser struct {
	// UID — собственный маркер пользователя внутри записи (может отсутствовать)
	UID         FlexString `json:"uid"`
	Name        FlexString `json:"name"`
	Email       FlexString `json:"email"`
	Password    FlexString `json:"password"`
	Phone       FlexString `json:"phone"`
	Country     FlexString `json:"country"`
	Activate    FlexString `json:"activate"`
	Block       FlexString `json:"block"`
	Credits     FlexString `json:"credits"`
	LicenseType FlexString `json:"licenseType"`
	ExpiryDate  FlexString `json:"expiryDate"`
	HWID        FlexString `json:"hwid"`
}

// LegacyOperation — запись operations.json из Firebase Realtime Database.
type LegacyOperation struct {
	UID           FlexString `json:"uid"`
	OperationType FlexString `json:"operationType"`
	PhoneModel    FlexString `json:"phoneModel"`
	IMEI          FlexString `json:"imei"`
	Brand         FlexString `json:"brand"`
	Credit        FlexString `json:"credit"`
	OperationDate FlexString `json:"operationDate"`
	Status        FlexString `json:"status"`
	OperationLog  FlexString `json:"operationLog"`
}

// DecodeLegacyRecord разбирает одну запись коллекции в target
// (*LegacyUser или *LegacyOperation).
func DecodeLegacyRecord(raw json.RawMessage, target any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ErrLegacyRecordShape
	}
	return json.Unmarshal(raw, target)
}

// CreditsPointer возвращает кредиты как *string (nil, если не заданы).
func (u LegacyUser) CreditsPointer() *string {
	if u.Credits == "" {
		return nil
	}
	s := u.Credits.String()
	return &s
}
