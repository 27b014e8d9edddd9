package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 32 zero bytes, base64 encoded
const testCookieSecret = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_KEY", "test_key")
	t.Setenv("COOKIE_SECRET", testCookieSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "device-auth", cfg.JWT.Audience)
	assert.Equal(t, "Device management API", cfg.JWT.Subject)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, 30, cfg.Auth.RefreshTokenExpiryDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTokenExpiry())
	assert.True(t, cfg.Auth.BindDevice)
	assert.Equal(t, "device_token", cfg.Cookie.RefreshName)
	assert.Equal(t, "client_id", cfg.Cookie.ClientName)
	assert.False(t, cfg.Cookie.HTTPSOnly)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_KEY", "test_key")
	t.Setenv("COOKIE_SECRET", testCookieSecret)
	t.Setenv("JWT_EXPIRATION", "1h")
	t.Setenv("REFRESH_EXPIRATION", "7")
	t.Setenv("HTTPS_ONLY", "true")
	t.Setenv("AUTH_BIND_DEVICE", "false")
	t.Setenv("REFRESH_COOKIE", "rt")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry())
	assert.True(t, cfg.Cookie.HTTPSOnly)
	assert.False(t, cfg.Auth.BindDevice)
	assert.Equal(t, "rt", cfg.Cookie.RefreshName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing jwt key", env: map[string]string{"COOKIE_SECRET": testCookieSecret}},
		{name: "missing cookie secret", env: map[string]string{"JWT_KEY": "k"}},
		{name: "short cookie secret", env: map[string]string{"JWT_KEY": "k", "COOKIE_SECRET": "c2hvcnQ="}},
		{name: "zero refresh days", env: map[string]string{"JWT_KEY": "k", "COOKIE_SECRET": testCookieSecret, "REFRESH_EXPIRATION": "0"}},
		{name: "otel without endpoint", env: map[string]string{"JWT_KEY": "k", "COOKIE_SECRET": testCookieSecret, "OTEL_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_KEY", "")
			t.Setenv("COOKIE_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
