package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", Protected(testSecret), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/admin", Protected(testSecret), AdminRequired(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestProtectedAndAdminRequired(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	guest := signToken(t, testSecret, jwt.MapClaims{"user_id": "u1", "role": "guest", "exp": exp})
	admin := signToken(t, testSecret, jwt.MapClaims{"user_id": "a1", "role": "admin", "exp": exp})
	forged := signToken(t, "other", jwt.MapClaims{"user_id": "a1", "role": "admin", "exp": exp})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing token", "/me", "", fiber.StatusBadRequest},
		{"guest token", "/me", guest, fiber.StatusOK},
		{"forged token", "/me", forged, fiber.StatusUnauthorized},
		{"guest on admin route", "/admin", guest, fiber.StatusForbidden},
		{"admin on admin route", "/admin", admin, fiber.StatusOK},
	}

	app := newProtectedApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims["user_id"] != "u1" {
		t.Fatalf("unexpected claims %v", claims)
	}

	expired := signToken(t, testSecret, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	if _, err := ParseToken(testSecret, expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if _, err := ParseToken("wrong", token); err == nil {
		t.Fatal("expected wrong secret to be rejected")
	}
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Get("/poll", RateLimit(20, zap.NewNop()), func(c *fiber.Ctx) error { return c.SendString("ok") })

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/poll", nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		codes[resp.StatusCode]++
	}
	if codes[fiber.StatusOK] != 2 || codes[fiber.StatusTooManyRequests] != 3 {
		t.Fatalf("expected burst of 2 then 429s, got %v", codes)
	}
}

func TestRateLimiterStoreEvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newRateLimiterStore(rate.Every(time.Second), 1)
	store.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		store.getLimiter(ip)
	}
	if len(store.limiters) != 3 {
		t.Fatalf("expected 3 tracked clients, got %d", len(store.limiters))
	}

	now = now.Add(5 * time.Minute)
	store.getLimiter("10.0.0.1")
	if len(store.limiters) != 3 {
		t.Fatalf("clients inside the idle window were dropped: %d left", len(store.limiters))
	}

	now = now.Add(limiterIdleTTL - time.Minute)
	store.getLimiter("10.0.0.4")
	if len(store.limiters) != 2 {
		t.Fatalf("expected idle clients to be evicted, %d left", len(store.limiters))
	}
	if _, ok := store.limiters["10.0.0.1"]; !ok {
		t.Fatal("recently seen client was evicted")
	}
	if _, ok := store.limiters["10.0.0.2"]; ok {
		t.Fatal("idle client was kept")
	}
}
