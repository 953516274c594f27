// Пакет legacy — HTTP-клиент к legacy-хранилищу Pegasus Tools
// (Firebase Identity Toolkit + Realtime Database REST API).
// Операции: SignIn (accounts:signInWithPassword), FetchUsers (GET /users.json),
// FetchOperations (GET /operations.json).
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pegasustools/admin-module/internal/domain/model"
)

// ErrInvalidCredentials — Identity Toolkit отклонил email/пароль.
var ErrInvalidCredentials = errors.New("legacy-хранилище отклонило учётные данные")

// Session — результат входа администратора в legacy-хранилище.
type Session struct {
	// IDToken — токен для параметра auth в запросах к Realtime Database
	IDToken string `json:"idToken"`
	// LocalID — UID администратора в Firebase
	LocalID string `json:"localId"`
}

// signInRequest — тело accounts:signInWithPassword.
type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"` //nolint:gosec // G117: учётные данные запроса
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// errorResponse — ошибка Identity Toolkit: {"error":{"code":400,"message":"INVALID_PASSWORD"}}.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент legacy-хранилища.
type Client struct {
	databaseURL string // https://<project>.firebaseio.com (без trailing slash)
	authURL     string // https://identitytoolkit.googleapis.com
	apiKey      string

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент legacy-хранилища.
// timeout — таймаут каждого HTTP-запроса.
func New(databaseURL, authURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		databaseURL: strings.TrimRight(databaseURL, "/"),
		authURL:     strings.TrimRight(authURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With(slog.String("component", "legacy_client")),
	}
}

// SignIn выполняет вход администратора по email и паролю.
// Отказ в учётных данных (4xx) возвращается как ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	reqURL := c.authURL + "/v1/accounts:signInWithPassword?key=" + url.QueryEscape(c.apiKey)

	data, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса входа: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("создание запроса входа: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос входа в legacy-хранилище: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, errResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Identity Toolkit вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("декодирование ответа входа: %w", err)
	}
	if session.IDToken == "" {
		return nil, errors.New("Identity Toolkit вернул пустой idToken")
	}

	c.logger.Debug("Вход в legacy-хранилище выполнен",
		slog.String("local_id", session.LocalID),
	)

	return &session, nil
}

// FetchUsers загружает коллекцию users. Если коллекция отсутствует
// (тело null), возвращает nil без ошибки.
func (c *Client) FetchUsers(ctx context.Context, idToken string) (model.LegacyRecords, error) {
	return c.fetchCollection(ctx, "users", idToken)
}

// FetchOperations загружает коллекцию operations. Если коллекция
// отсутствует (тело null), возвращает nil без ошибки.
func (c *Client) FetchOperations(ctx context.Context, idToken string) (model.LegacyRecords, error) {
	return c.fetchCollection(ctx, "operations", idToken)
}

// fetchCollection выполняет GET {db}/{name}.json?auth=<token> и возвращает
// записи коллекции без разбора их содержимого.
func (c *Client) fetchCollection(ctx context.Context, name, idToken string) (model.LegacyRecords, error) {
	reqURL := fmt.Sprintf("%s/%s.json?auth=%s", c.databaseURL, name, url.QueryEscape(idToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s: %w", name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос коллекции %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Realtime Database вернула статус %d для %s: %s", resp.StatusCode, name, string(body))
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("декодирование коллекции %s: %w", name, err)
	}

	records, err := decodeCollection(body)
	if err != nil {
		return nil, fmt.Errorf("декодирование коллекции %s: %w", name, err)
	}
	return records, nil
}

// decodeCollection разбирает тело коллекции. Realtime Database отдаёт
// коллекцию с последовательными числовыми ключами как массив: индекс
// становится ключом, пустые (null) элементы пропускаются.
func decodeCollection(body json.RawMessage) (model.LegacyRecords, error) {
	body = bytes.TrimSpace(body)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		return nil, nil
	case body[0] == '{':
		var records model.LegacyRecords
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
		return records, nil
	case body[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		records := make(model.LegacyRecords, len(items))
		for i, item := range items {
			if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
				continue
			}
			records[strconv.Itoa(i)] = item
		}
		return records, nil
	default:
		return nil, fmt.Errorf("коллекция должна быть объектом или массивом, получено %.32s", body)
	}
}
