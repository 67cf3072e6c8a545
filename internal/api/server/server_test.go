package server_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"storyboard/internal/api/server"
	"storyboard/internal/config"
	"storyboard/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestServer_Run(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tests := []struct {
		name    string
		port    string
		wantErr bool
	}{
		{"shuts down on cancel", "0", false},
		{"invalid port", "-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.APIConfig{Port: tt.port, ShutdownTimeout: time.Second}
			srv := server.New(cfg, http.NotFoundHandler(), logging.Discard())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Run(ctx) }()

			if !tt.wantErr {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}

			select {
			case err := <-done:
				if tt.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), "failed to start server")
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("server did not stop")
			}
			cancel()
		})
	}
}
