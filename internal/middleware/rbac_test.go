package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func teacherApp(secret string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/problem-sets", TeacherOnly(secret)...)
	group.Get("", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleRejectsStudents(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", "student")
		return c.Next()
	})
	app.Use(RequireRole("Teacher", "admin"))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestTeacherOnlyOpenWithoutSecret(t *testing.T) {
	resp, err := teacherApp("").Test(httptest.NewRequest(http.MethodGet, "/api/problem-sets", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTeacherOnlyWithSecret(t *testing.T) {
	const secret = "classroom-secret"
	app := teacherApp(secret)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: fiber.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: fiber.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "t1", "role": "teacher"}), status: fiber.StatusUnauthorized},
		{name: "student role", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "s1", "role": "student"}), status: fiber.StatusForbidden},
		{name: "teacher role", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "t1", "role": "Teacher"}), status: fiber.StatusOK},
		{name: "roles list", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "a1", "roles": []string{"admin"}, "exp": time.Now().Add(time.Hour).Unix()}), status: fiber.StatusOK},
		{name: "expired", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "t1", "role": "teacher", "exp": time.Now().Add(-time.Hour).Unix()}), status: fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/problem-sets", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/api/submissions", RateLimit("submissions", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/submissions", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/submissions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRegisterSetsCorrelationHeader(t *testing.T) {
	app := fiber.New()
	Register(app, Config{})
	app.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.SendString(GetCorrelationID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "abc-123", resp.Header.Get("X-Correlation-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}
