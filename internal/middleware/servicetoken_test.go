package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func tokenApp(token string) *fiber.App {
	app := fiber.New()
	app.Use(ServiceToken(token))
	app.Post("/internal/action", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestServiceTokenAcceptsMatchingBearer(t *testing.T) {
	app := tokenApp("s3cret")

	req := httptest.NewRequest(fiber.MethodPost, "/internal/action", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer s3cret")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServiceTokenRejectsBadCredentials(t *testing.T) {
	app := tokenApp("s3cret")

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic s3cret"},
		{"wrong token", "Bearer guess"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/internal/action", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestServiceTokenLocksWhenUnconfigured(t *testing.T) {
	app := tokenApp("")

	req := httptest.NewRequest(fiber.MethodPost, "/internal/action", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer anything")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
