package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/paylynx-policy/config"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    4 * time.Second,
			ShutdownTimeout: time.Second,
		},
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	handler := http.NewServeMux()

	srv := newServer(cfg, handler)

	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Equal(t, 3*time.Second, srv.ReadTimeout)
	assert.Equal(t, 4*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.NotNil(t, srv.Handler)
}

func TestServe(t *testing.T) {
	t.Run("graceful shutdown on cancel", func(t *testing.T) {
		cfg := testConfig()
		srv := newServer(cfg, http.NewServeMux())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serve(ctx, srv, cfg, zaptest.NewLogger(t)) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("serve did not return after cancel")
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = "does-not-exist.pem"
		cfg.Server.TLS.KeyFile = "does-not-exist.pem"
		srv := newServer(cfg, http.NewServeMux())

		err := serve(context.Background(), srv, cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server error")
	})
}
