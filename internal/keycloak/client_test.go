package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockKeycloak создаёт mock HTTP-сервер Keycloak.
// tokenHandler обрабатывает запросы на получение токена.
// adminHandler обрабатывает запросы к Admin REST API.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	// Token endpoint
	mux.HandleFunc("/realms/pegasus/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		// Дефолтный ответ: валидный токен на 300 секунд
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	})

	// Admin REST API
	mux.HandleFunc("/admin/realms/pegasus/", func(w http.ResponseWriter, r *http.Request) {
		if adminHandler != nil {
			adminHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(
		server.URL,
		"pegasus",
		"admin-module",
		"test-secret",
		server.Client(),
		testLogger(),
	)

	return server, client
}

// TestClient_TokenCaching проверяет кэширование токена.
func TestClient_TokenCaching(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "cached-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	// Первый запрос — получение токена
	token1, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token1 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token1)
	}

	// Второй запрос — из кэша (не должен вызывать HTTP)
	token2, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token2 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token2)
	}

	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefresh проверяет обновление истёкшего токена.
func TestClient_TokenRefresh(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "refreshed-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Устанавливаем «просроченный» токен в кэш
	client.accessToken = "old-token"
	client.tokenExpiry = time.Now().Add(-time.Second)

	ctx := context.Background()
	token, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "refreshed-token" {
		t.Errorf("ожидался refreshed-token, получен %s", token)
	}
	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefreshBefore30s проверяет обновление за 30 секунд до истечения.
func TestClient_TokenRefreshBefore30s(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "new-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Токен истекает через 20 секунд — должен обновиться (< 30s)
	client.accessToken = "expiring-token"
	client.tokenExpiry = time.Now().Add(20 * time.Second)

	ctx := context.Background()
	token, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "new-token" {
		t.Errorf("ожидался new-token, получен %s", token)
	}
}

// TestClient_ClientCredentialsFlow проверяет формат запроса Client Credentials.
func TestClient_ClientCredentialsFlow(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			// Проверяем метод
			if r.Method != http.MethodPost {
				t.Errorf("ожидался POST, получен %s", r.Method)
			}
			// Проверяем Content-Type
			ct := r.Header.Get("Content-Type")
			if ct != "application/x-www-form-urlencoded" {
				t.Errorf("ожидался Content-Type application/x-www-form-urlencoded, получен %s", ct)
			}
			// Проверяем параметры
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Ошибка парсинга формы: %v", err)
			}
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("ожидался grant_type=client_credentials, получен %s", r.Form.Get("grant_type"))
			}
			if r.Form.Get("client_id") != "admin-module" {
				t.Errorf("ожидался client_id=admin-module, получен %s", r.Form.Get("client_id"))
			}
			if r.Form.Get("client_secret") != "test-secret" {
				t.Errorf("ожидался client_secret=test-secret, получен %s", r.Form.Get("client_secret"))
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "ok",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	_, err := client.getToken(context.Background())
	if err != nil {
		t.Fatalf("Ошибка: %v", err)
	}
}

// TestClient_TokenError проверяет обработку ошибки получения токена.
func TestClient_TokenError(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
		},
		nil,
	)

	_, err := client.getToken(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("ожидалась ошибка со статусом 401, получена: %v", err)
	}
}

// TestClient_CreateUser проверяет CreateUser и формат запроса.
func TestClient_CreateUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if r.Header.Get("Authorization") != "Bearer test-access-token" {
				t.Errorf("неверный Authorization: %s", r.Header.Get("Authorization"))
			}

			var req userCreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("Ошибка декодирования: %v", err)
			}
			if req.Username != "ivan@example.com" || req.Email != "Ivan@example.com" {
				t.Errorf("username/email = %s/%s", req.Username, req.Email)
			}
			if !req.Enabled || !req.EmailVerified {
				t.Error("ожидались enabled=true и emailVerified=true")
			}
			if len(req.Credentials) != 1 || req.Credentials[0].Value != "secret-pass" || req.Credentials[0].Temporary {
				t.Errorf("credentials = %+v", req.Credentials)
			}
			if len(req.RequiredActions) != 0 {
				t.Errorf("requiredActions = %v, ожидался пустой список", req.RequiredActions)
			}
			if got := req.Attributes["legacy_id"]; len(got) != 1 || got[0] != "-Nabc" {
				t.Errorf("attributes.legacy_id = %v", got)
			}

			w.Header().Set("Location", "https://keycloak/admin/realms/pegasus/users/kc-user-id")
			w.WriteHeader(http.StatusCreated)
		},
	)

	id, err := client.CreateUser(context.Background(), NewUser{
		Email:       "Ivan@example.com",
		Password:    "secret-pass",
		DisplayName: "Ivan",
		Attributes:  map[string][]string{"legacy_id": {"-Nabc"}},
	})
	if err != nil {
		t.Fatalf("Ошибка CreateUser: %v", err)
	}
	if id != "kc-user-id" {
		t.Errorf("ожидался ID=kc-user-id, получен %s", id)
	}
}

// TestClient_CreateUser_TemporaryPassword проверяет UPDATE_PASSWORD для временного пароля.
func TestClient_CreateUser_TemporaryPassword(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			var req userCreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("Ошибка декодирования: %v", err)
			}
			if !req.Credentials[0].Temporary {
				t.Error("ожидался temporary=true")
			}
			if len(req.RequiredActions) != 1 || req.RequiredActions[0] != "UPDATE_PASSWORD" {
				t.Errorf("requiredActions = %v, ожидался [UPDATE_PASSWORD]", req.RequiredActions)
			}
			w.Header().Set("Location", "/admin/realms/pegasus/users/tmp-id")
			w.WriteHeader(http.StatusCreated)
		},
	)

	id, err := client.CreateUser(context.Background(), NewUser{
		Email:             "nopass@example.com",
		Password:          "generated",
		TemporaryPassword: true,
	})
	if err != nil {
		t.Fatalf("Ошибка CreateUser: %v", err)
	}
	if id != "tmp-id" {
		t.Errorf("ожидался ID=tmp-id, получен %s", id)
	}
}

// TestClient_CreateUser_Errors проверяет обработку ошибочных ответов.
func TestClient_CreateUser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		location string
		wantErr  error
	}{
		{"конфликт", http.StatusConflict, "", ErrUserExists},
		{"ошибка сервера", http.StatusInternalServerError, "", nil},
		{"нет Location", http.StatusCreated, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := setupMockKeycloak(t, nil,
				func(w http.ResponseWriter, r *http.Request) {
					if tt.location != "" {
						w.Header().Set("Location", tt.location)
					}
					w.WriteHeader(tt.status)
				},
			)

			_, err := client.CreateUser(context.Background(), NewUser{Email: "a@example.com", Password: "p"})
			if err == nil {
				t.Fatal("ожидалась ошибка, получен nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получена %v", tt.wantErr, err)
			}
		})
	}
}

// TestClient_DeleteUser проверяет DeleteUser, включая идемпотентность для 404.
func TestClient_DeleteUser(t *testing.T) {
	deleted := 0
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/users/kc-id") {
				deleted++
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	if err := client.DeleteUser(context.Background(), "kc-id"); err != nil {
		t.Fatalf("Ошибка DeleteUser: %v", err)
	}
	if deleted != 1 {
		t.Errorf("ожидался 1 запрос DELETE, было %d", deleted)
	}
	if err := client.DeleteUser(context.Background(), "gone"); err != nil {
		t.Errorf("DeleteUser(gone) = %v, ожидался nil", err)
	}
}

// realmHandler отвечает на запрос realm info.
func realmHandler(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/admin/realms/pegasus")
		if path == "" || path == "/" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(RealmRepresentation{
				Realm:   "pegasus",
				Enabled: enabled,
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

// TestClient_RealmInfo проверяет RealmInfo.
func TestClient_RealmInfo(t *testing.T) {
	_, client := setupMockKeycloak(t, nil, realmHandler(true))

	realm, err := client.RealmInfo(context.Background())
	if err != nil {
		t.Fatalf("Ошибка RealmInfo: %v", err)
	}
	if realm.Realm != "pegasus" {
		t.Errorf("ожидался realm=pegasus, получен %s", realm.Realm)
	}
	if !realm.Enabled {
		t.Error("ожидался enabled=true")
	}
}

// TestClient_CheckAccess проверяет CheckAccess для включённого и отключённого realm.
func TestClient_CheckAccess(t *testing.T) {
	_, client := setupMockKeycloak(t, nil, realmHandler(true))
	if err := client.CheckAccess(context.Background()); err != nil {
		t.Errorf("CheckAccess() = %v, ожидался nil", err)
	}

	_, disabled := setupMockKeycloak(t, nil, realmHandler(false))
	if err := disabled.CheckAccess(context.Background()); err == nil {
		t.Error("CheckAccess() для отключённого realm должен вернуть ошибку")
	}
}

// TestClient_CheckReady проверяет CheckReady.
func TestClient_CheckReady(t *testing.T) {
	_, client := setupMockKeycloak(t, nil, realmHandler(true))

	status, msg := client.CheckReady()
	if status != "ok" {
		t.Errorf("ожидался status=ok, получен %s: %s", status, msg)
	}

	_, disabled := setupMockKeycloak(t, nil, realmHandler(false))
	if status, _ := disabled.CheckReady(); status != "degraded" {
		t.Errorf("ожидался status=degraded, получен %s", status)
	}
}

// TestClient_CheckReady_Fail проверяет CheckReady при недоступности.
func TestClient_CheckReady_Fail(t *testing.T) {
	client := New(
		"http://localhost:1", // Несуществующий адрес
		"pegasus",
		"admin-module",
		"secret",
		&http.Client{Timeout: 100 * time.Millisecond},
		testLogger(),
	)

	status, _ := client.CheckReady()
	if status != "fail" {
		t.Errorf("ожидался status=fail, получен %s", status)
	}
}

// TestClient_Configured проверяет признак наличия client secret.
func TestClient_Configured(t *testing.T) {
	if !New("http://kc", "pegasus", "admin-module", "secret", nil, testLogger()).Configured() {
		t.Error("ожидался Configured()=true")
	}
	if New("http://kc", "pegasus", "admin-module", "", nil, testLogger()).Configured() {
		t.Error("ожидался Configured()=false без секрета")
	}
}
