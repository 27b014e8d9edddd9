package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/config"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/mansoorceksport/deviceauth/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner() *service.JWTSigner {
	return service.NewJWTSigner(config.JWTConfig{
		Key:               "test_key",
		Audience:          "device-auth",
		Issuer:            "http://localhost:4000",
		Subject:           "Device management API",
		AccessTokenExpiry: time.Minute,
	})
}

func TestAuthGuards(t *testing.T) {
	signer := testSigner()
	token, err := signer.Sign(domain.AccessClaims{
		Account:  domain.AccountView{ID: "abc", Username: "test_user"},
		DeviceID: "1",
	})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(Authenticate(signer))
	app.Get("/private", RequireAuthenticated(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"account": c.Locals(AccountIDKey),
			"device":  c.Locals(DeviceIDKey),
		})
	})
	app.Get("/public", RequireAnonymous(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"private with token", "/private", "Bearer " + token, fiber.StatusOK},
		{"private without token", "/private", "", fiber.StatusForbidden},
		{"private with garbage token", "/private", "Bearer garbage", fiber.StatusForbidden},
		{"private without bearer prefix", "/private", token, fiber.StatusForbidden},
		{"public anonymous", "/public", "", fiber.StatusOK},
		{"public with token", "/public", "Bearer " + token, fiber.StatusForbidden},
		{"public with garbage token", "/public", "Bearer garbage", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusForbidden {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "Not permitted.", body["message"])
			}
		})
	}

	req := httptest.NewRequest("GET", "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc", body["account"])
	assert.Equal(t, "1", body["device"])
}

func TestClientInfo(t *testing.T) {
	app := fiber.New()
	app.Use(ClientInfo("client_id"))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(Client(c))
	})

	tests := []struct {
		name       string
		target     string
		headers    map[string]string
		identifier string
		address    string
	}{
		{
			name:       "query parameter",
			target:     "/?client_id=q-1",
			identifier: "q-1",
		},
		{
			name:       "cookie",
			target:     "/",
			headers:    map[string]string{"Cookie": "client_id=c-1"},
			identifier: "c-1",
		},
		{
			name:       "query wins over cookie",
			target:     "/?client_id=q-1",
			headers:    map[string]string{"Cookie": "client_id=c-1"},
			identifier: "q-1",
		},
		{
			name:    "x-forwarded-for first hop",
			target:  "/",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			address: "203.0.113.9",
		},
		{
			name:    "forwarded header",
			target:  "/",
			headers: map[string]string{"Forwarded": `for="198.51.100.4";proto=https`},
			address: "198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			req.Header.Set("User-Agent", "jest/1.0")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			var info service.ClientInfo
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
			assert.Equal(t, tt.identifier, info.Identifier)
			if tt.address != "" {
				assert.Equal(t, tt.address, info.Address)
			} else {
				assert.NotEmpty(t, info.Address, "falls back to the socket address")
			}
			assert.Equal(t, "jest/1.0", info.Agent)
		})
	}
}

func TestIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var calls atomic.Int32
	app := fiber.New()
	app.Use(Idempotency(client, time.Hour))
	app.Post("/things", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"call":         n,
			"refreshToken": "secret-" + string(c.Body()),
		})
	})
	app.Post("/fail", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "nope"})
	})

	post := func(path, correlationID, payload string) (int, string, string) {
		req := httptest.NewRequest("POST", path, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body), resp.Header.Get("X-Idempotent-Replay")
	}

	status, first, replay := post("/things", "abc", `{"u":"alice"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Contains(t, first, "secret-")
	assert.Empty(t, replay)

	t.Run("repeat is rejected without the original body", func(t *testing.T) {
		status, second, replay := post("/things", "abc", `{"u":"alice"}`)
		assert.Equal(t, fiber.StatusConflict, status)
		assert.Equal(t, "true", replay)
		assert.NotContains(t, second, "secret-")
		assert.JSONEq(t, `{"message":"This request has already been processed."}`, second)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("reused id with another body runs the handler", func(t *testing.T) {
		status, body, replay := post("/things", "abc", `{"u":"mallory"}`)
		assert.Equal(t, fiber.StatusCreated, status)
		assert.Empty(t, replay)
		assert.Contains(t, body, `secret-{\"u\":\"mallory\"}`)
		assert.NotContains(t, body, "alice")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("stored markers hold no response data", func(t *testing.T) {
		for _, key := range mr.Keys() {
			value, err := mr.Get(key)
			require.NoError(t, err)
			assert.NotContains(t, value, "secret-")
			assert.Equal(t, "201", value)
			assert.NotContains(t, key, "alice")
		}
	})

	t.Run("missing id passes through", func(t *testing.T) {
		before := calls.Load()
		post("/things", "", "{}")
		post("/things", "", "{}")
		assert.Equal(t, before+2, calls.Load())
	})

	t.Run("failures release the key", func(t *testing.T) {
		before := calls.Load()
		post("/fail", "zzz", "{}")
		status, _, replay := post("/fail", "zzz", "{}")
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Empty(t, replay)
		assert.Equal(t, before+2, calls.Load())
	})

	t.Run("marker expires after ttl", func(t *testing.T) {
		before := calls.Load()
		mr.FastForward(2 * time.Hour)
		status, _, _ := post("/things", "abc", `{"u":"alice"}`)
		assert.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, before+1, calls.Load())
	})
}
