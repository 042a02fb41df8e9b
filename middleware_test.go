package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func makeToken(sub string, secret string, method jwt.SigningMethod) string {
	claims := jwt.MapClaims{"sub": sub}
	token := jwt.NewWithClaims(method, claims)
	s, _ := token.SignedString([]byte(secret))
	return s
}

func makeTokenWithExp(sub string, secret string, exp time.Time) string {
	claims := jwt.MapClaims{"sub": sub, "exp": jwt.NewNumericDate(exp)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, _ := token.SignedString([]byte(secret))
	return s
}

// jwtTestMux creates a mux with a protected route and the public /search.
func jwtTestMux(auth func(http.Handler) http.Handler, inner http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/preferences", inner)
	mux.Handle("GET /search", inner)
	return auth(mux)
}

func TestJWTAuth_ValidToken(t *testing.T) {
	token := makeToken("local", testSecret, jwt.SigningMethodHS256)
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		if claims.Subject != "local" {
			t.Fatalf("expected sub=local, got %s", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_WrongSecret(t *testing.T) {
	token := makeToken("local", "wrong-secret", jwt.SigningMethodHS256)
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	token := makeTokenWithExp("local", testSecret, time.Now().Add(-1*time.Hour))
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_BadFormat(t *testing.T) {
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "NotBearer token")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_IssuerValidation(t *testing.T) {
	// Token without issuer, but middleware expects one
	claims := jwt.MapClaims{"sub": "local"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, _ := token.SignedString([]byte(testSecret))

	auth := JWTAuth(testSecret, "expected-issuer")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/api/v1/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: token without matching issuer should be rejected", w.Code)
	}
}

func TestJWTAuth_PublicPaths(t *testing.T) {
	auth := JWTAuth(testSecret, "")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok {
			t.Fatal("expected no claims on a public path")
		}
		w.WriteHeader(http.StatusOK)
	})

	mux := jwtTestMux(auth, inner)
	req := httptest.NewRequest("GET", "/search?q=hello", nil)
	// No Authorization header: /search is reached by browser navigation
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS("https://example.com")(inner)

	// Normal request
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Fatalf("expected CORS origin header, got %s", w.Header().Get("Access-Control-Allow-Origin"))
	}

	// Preflight request
	req = httptest.NewRequest("OPTIONS", "/test", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for OPTIONS, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := Recovery(logger)(inner)
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RequestLogging(logger)(inner)
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	logOutput := buf.String()
	if logOutput == "" {
		t.Fatal("expected log output, got nothing")
	}
	if !strings.Contains(logOutput, "GET") || !strings.Contains(logOutput, "/test") {
		t.Fatalf("expected log to contain method and path, got: %s", logOutput)
	}
}

func TestRequestLogging_RequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := RequestLogging(testLogger())(inner)

	// Generated when absent
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id echoed in header, got %q / %q", seen, w.Header().Get("X-Request-ID"))
	}

	// Kept when the caller sends one
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "abc-123" {
		t.Fatalf("expected caller request id, got %q", seen)
	}
}
