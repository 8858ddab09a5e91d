package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-core"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []auth.Event
}

func (r *eventRecorder) subscribeTo(bus *auth.EventBus) {
	bus.SubscribeAll(func(event auth.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
	})
}

func (r *eventRecorder) ofType(eventType auth.EventType) []auth.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []auth.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (r *eventRecorder) count(eventType auth.EventType) int {
	return len(r.ofType(eventType))
}

// failingStorage wraps a Storage and fails selected operations.
type failingStorage struct {
	auth.Storage
	findSessionErr error
	createUserErr  error
}

func (s *failingStorage) FindSession(ctx context.Context, sessionID uuid.UUID) (*auth.Session, error) {
	if s.findSessionErr != nil {
		return nil, s.findSessionErr
	}
	return s.Storage.FindSession(ctx, sessionID)
}

func (s *failingStorage) CreateUser(ctx context.Context, identifier, passwordHash string, metadata map[string]any) (*auth.User, error) {
	if s.createUserErr != nil {
		return nil, s.createUserErr
	}
	return s.Storage.CreateUser(ctx, identifier, passwordHash, metadata)
}

// nopLogger silences component logging in tests.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func testCodec() *auth.TokenCodecImpl {
	return auth.NewTokenCodec([]byte("test-signing-secret-for-suite"), 15*time.Minute, "test-issuer", nil)
}

func testConfig() auth.SimpleConfig {
	return auth.SimpleConfig{
		SigningSecret:   "test-signing-secret-for-suite",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "test-issuer",
		BcryptCost:      bcrypt.MinCost,
	}
}

func allowAllClaims(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
	return &auth.Claims{
		Roles:       []string{"member"},
		Permissions: []string{"profile:read"},
	}, nil
}

func permissionPolicy(ctx context.Context, req auth.PolicyRequest) (bool, error) {
	return req.Claims.HasPermission(req.Policy), nil
}
