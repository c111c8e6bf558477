/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGenerateAndValidateAPIKey(t *testing.T) {
	db := newTestDB(t)

	plaintext, key, err := GenerateAPIKey("playout-engine", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		t.Errorf("plaintext = %q, want %s prefix", plaintext, APIKeyPrefix)
	}
	if strings.Contains(key.KeyHash, plaintext) {
		t.Error("stored hash must not contain the plaintext")
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	claims, err := ValidateAPIKey(db, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if claims.Name != "playout-engine" {
		t.Errorf("claims name = %q", claims.Name)
	}

	if _, err := ValidateAPIKey(db, "mn_bogus"); err != ErrAPIKeyNotFound {
		t.Errorf("bogus key err = %v, want not found", err)
	}
}

func TestRevokedAndExpiredKeysRejected(t *testing.T) {
	db := newTestDB(t)

	plaintext, key, err := GenerateAPIKey("short-lived", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	if err := RevokeAPIKey(db, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := ValidateAPIKey(db, plaintext); err != ErrAPIKeyRevoked {
		t.Errorf("revoked key err = %v, want revoked", err)
	}

	expired, expiredKey, err := GenerateAPIKey("expired", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(expiredKey).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}
	if _, err := ValidateAPIKey(db, expired); err != ErrAPIKeyExpired {
		t.Errorf("expired key err = %v, want expired", err)
	}
}

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{Name: "operator"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Name != "operator" {
		t.Fatalf("expected name operator, got %q", claims.Name)
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		Name: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "operator",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestMiddlewareWithJWT_AcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{Name: "operator"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims == nil {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/chain", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	MiddlewareWithJWT(nil, secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareAcceptsAPIKeyHeader(t *testing.T) {
	db := newTestDB(t)
	plaintext, key, err := GenerateAPIKey("playout-engine", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	req.Header.Set("X-API-Key", plaintext)
	rr := httptest.NewRecorder()

	Middleware(db)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMiddlewareRejectsMissingCredentials(t *testing.T) {
	db := newTestDB(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	rr := httptest.NewRecorder()

	MiddlewareWithJWT(db, []byte("secret"))(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
