// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
package keycloak

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewUser — параметры создания пользователя.
type NewUser struct {
	Email    string
	Password string
	// DisplayName — отображаемое имя, попадает в firstName
	DisplayName string
	// Attributes — дополнительные атрибуты (например, legacy_id)
	Attributes map[string][]string
	// TemporaryPassword — требовать смену пароля при первом входе
	TemporaryPassword bool
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// credentialRepresentation — пароль пользователя в Admin REST API.
type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// userCreateRequest — тело POST /users.
type userCreateRequest struct {
	Username        string                     `json:"username"`
	Email           string                     `json:"email"`
	FirstName       string                     `json:"firstName,omitempty"`
	Enabled         bool                       `json:"enabled"`
	EmailVerified   bool                       `json:"emailVerified"`
	Credentials     []credentialRepresentation `json:"credentials"`
	RequiredActions []string                   `json:"requiredActions,omitempty"`
	Attributes      map[string][]string        `json:"attributes,omitempty"`
}
