// Package testutil provides utilities for testing
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storyboard/internal/api/routes"
	"storyboard/internal/auth"
	"storyboard/internal/config"
	"storyboard/internal/email"
	"storyboard/internal/logging"
	"storyboard/internal/models"
	"storyboard/internal/repository"
	"storyboard/internal/repository/memory"
	"storyboard/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// StrongPassword satisfies the default password policy
const StrongPassword = "Correct-Horse-9"

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Message is one notification captured by Notifier
type Message struct {
	To       string
	Template string
	Payload  map[string]string
}

// Notifier records every message instead of sending it
type Notifier struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send implements email.Notifier
func (n *Notifier) Send(_ context.Context, to, templateID string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Message{To: to, Template: templateID, Payload: payload})
	return n.Err
}

// Sent returns a copy of the captured messages
func (n *Notifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}

// LastToken returns the token of the newest message of templateID sent to to,
// or "" when there is none
func (n *Notifier) LastToken(to, templateID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if m := n.sent[i]; m.To == to && m.Template == templateID {
			return m.Payload[email.KeyToken]
		}
	}
	return ""
}

// Config returns the default configuration with a test secret and the
// cheapest bcrypt cost. It is not passed through Validate.
func Config() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	return cfg
}

// TestContext holds common test dependencies
type TestContext struct {
	T        *testing.T
	Config   *config.Config
	Clock    *Clock
	Memory   *memory.Store
	Store    repository.Store
	Notifier *Notifier
	Service  *auth.Service
	Router   *gin.Engine
}

// Option adjusts the configuration before the service is built
type Option func(*config.Config)

// NewTestContext creates a new test context backed by the in-memory store
func NewTestContext(t *testing.T, opts ...Option) *TestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)
	validation.Initialize()

	cfg := Config()
	for _, opt := range opts {
		opt(cfg)
	}

	clock := NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	mem := memory.New()
	store := mem.Repositories()
	notifier := &Notifier{}

	service := auth.NewService(cfg, store, notifier,
		auth.WithClock(clock.Now),
		auth.WithSyncNotifications(),
	)

	router := routes.SetupRoutes(routes.Dependencies{
		Service: service,
		DB:      pinger{},
		Logger:  logging.Discard(),
	})

	return &TestContext{
		T:        t,
		Config:   cfg,
		Clock:    clock,
		Memory:   mem,
		Store:    store,
		Notifier: notifier,
		Service:  service,
		Router:   router,
	}
}

// CreateUser registers and verifies an account with StrongPassword
func (tc *TestContext) CreateUser(addr string) *models.User {
	tc.T.Helper()
	ctx := context.Background()

	user, err := tc.Service.Register(ctx, auth.RegisterInput{Email: addr, Password: StrongPassword, Name: "Test User"})
	require.NoError(tc.T, err)

	if token := tc.Notifier.LastToken(user.Email, email.TemplateVerifyEmail); token != "" {
		require.NoError(tc.T, tc.Service.VerifyEmail(ctx, token))
		user.EmailVerified = true
	}
	return user
}

// Login logs in with StrongPassword
func (tc *TestContext) Login(addr string) *auth.LoginResult {
	tc.T.Helper()

	res, err := tc.Service.Login(context.Background(), auth.LoginInput{
		Email:     addr,
		Password:  StrongPassword,
		IPAddress: "192.0.2.1",
		UserAgent: "testutil",
	})
	require.NoError(tc.T, err)
	return res
}

// Do sends a request through the router. body is JSON encoded unless nil.
func (tc *TestContext) Do(method, path, accessToken string, body any) *httptest.ResponseRecorder {
	tc.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(tc.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	w := httptest.NewRecorder()
	tc.Router.ServeHTTP(w, req)
	return w
}

// Decode unmarshals a recorded JSON response into v
func Decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type pinger struct{}

func (pinger) PingContext(context.Context) error { return nil }
