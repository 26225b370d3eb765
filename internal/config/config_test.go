// internal/config/config_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// valid 는 Validate 를 통과하는 최소 설정.
func valid() Config {
	return Config{
		Threads:      4,
		MaxBodySize:  1 << 20,
		QueueSize:    16,
		ResponseCode: 200,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string // "" = 통과
	}{
		{"defaults ok", func(c *Config) {}, ""},

		// TLS 불변식: 둘 다 있어야 켤 수 있다.
		// listener bind 이전(Validate 시점)에 걸려야 한다.
		{"ssl without anything", func(c *Config) { c.SSL = true }, "ssl"},
		{"ssl cert only", func(c *Config) {
			c.SSL = true
			c.SSLCertificate = "/etc/ssl/server.crt"
		}, "ssl"},
		{"ssl key only", func(c *Config) {
			c.SSL = true
			c.SSLKey = "/etc/ssl/server.key"
		}, "ssl"},
		{"ssl complete", func(c *Config) {
			c.SSL = true
			c.SSLCertificate = "/etc/ssl/server.crt"
			c.SSLKey = "/etc/ssl/server.key"
		}, ""},
		{"ssl material without flag ok", func(c *Config) {
			c.SSLCertificate = "/etc/ssl/server.crt"
			c.SSLKey = "/etc/ssl/server.key"
		}, ""},

		{"zero threads", func(c *Config) { c.Threads = 0 }, "threads"},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, "body size"},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, "queue"},
		{"teapot response code", func(c *Config) { c.ResponseCode = 418 }, "response code"},
		{"201 allowed", func(c *Config) { c.ResponseCode = 201 }, ""},

		{"user without password", func(c *Config) { c.AuthUser = "u" }, "auth"},
		{"password without user", func(c *Config) { c.AuthPassword = "p" }, "auth"},
		{"credential pair ok", func(c *Config) {
			c.AuthUser = "u"
			c.AuthPassword = "p"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 200, cfg.ResponseCode)
	assert.GreaterOrEqual(t, cfg.Threads, 1)
	assert.False(t, cfg.SSL)
	assert.False(t, cfg.SinkEnabled)
	assert.NotEmpty(t, cfg.InstanceID)

	// 기본값들은 Validate 를 통과해야 한다
	assert.NoError(t, cfg.Validate())
}

func TestLoadMapEnvs(t *testing.T) {
	t.Setenv("ADDITIONAL_CODECS", `{"application/json":"plain","text/csv":"lines"}`)
	t.Setenv("RESPONSE_HEADERS", `{"X-Collector":"evgate"}`)

	cfg := Load()

	assert.Equal(t, map[string]string{
		"application/json": "plain",
		"text/csv":         "lines",
	}, cfg.AdditionalCodecs)
	assert.Equal(t, map[string]string{"X-Collector": "evgate"}, cfg.ResponseHeaders)
}

func TestLoadScalarEnvs(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("THREADS", "2")
	t.Setenv("RESPONSE_CODE", "201")
	t.Setenv("SSL", "true")
	t.Setenv("SSL_CERTIFICATE", "/tmp/a.crt")
	t.Setenv("SSL_KEY", "/tmp/a.key")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, 201, cfg.ResponseCode)
	assert.True(t, cfg.SSL)
	assert.NoError(t, cfg.Validate())
}
