package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/botlist/arcadia/internal/api/http/handlers"
	"github.com/botlist/arcadia/internal/auth"
	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/observability"
	"github.com/botlist/arcadia/internal/repository/memstore"
	"github.com/botlist/arcadia/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app       *fiber.App
	db        *memstore.DB
	panelAuth *service.PanelAuthService
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	db := memstore.New()
	db.PutPosition(domain.StaffPosition{ID: "manager", Name: "Manager", RoleID: "r-manager", Index: 10, Perms: []string{
		"bots.*", "onboarding.*", "staff_disciplinary.*", "rpc.*",
	}})
	db.PutPosition(domain.StaffPosition{ID: "reviewer", Name: "Reviewer", RoleID: "r-reviewer", Index: 20, Perms: []string{
		"bots.claim", "bots.queue", "rpc.tier.staff", "rpc.Approve", "rpc.Deny",
	}})

	store := db.Store()
	dispatcher := events.NewInMemoryDispatcher()
	authz := service.NewAuthorizer(store)
	panelAuth := service.NewPanelAuthService(config.AuthConfig{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost}, store.Staff)
	queue := service.NewQueueService(config.QueueConfig{MinClaimAge: time.Minute}, service.QueueDependencies{
		Store: store, Transactor: db, Authorizer: authz, Dispatcher: dispatcher,
	})
	rpc := service.NewRPCService(service.RPCDependencies{
		Store: store, Transactor: db, Authorizer: authz, Queue: queue, Dispatcher: dispatcher,
	})
	onboarding := service.NewOnboardingService(config.OnboardingConfig{}, service.OnboardingDependencies{
		UserRepo: store.Users, StaffRepo: store.Staff, Authorizer: authz, Dispatcher: dispatcher,
	})
	admin := service.NewStaffAdminService(service.StaffAdminDependencies{
		Store: store, Transactor: db, Authorizer: authz, Dispatcher: dispatcher,
	})

	app := fiber.New()
	logger := zap.NewNop()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("arcadia", "test", deps),
		Auth:           handlers.NewAuthHandler(panelAuth),
		Queue:          handlers.NewQueueHandler(queue),
		RPC:            handlers.NewRPCHandler(rpc),
		Onboarding:     handlers.NewOnboardingHandler(onboarding),
		Staff:          handlers.NewStaffHandler(admin),
		AuthMiddleware: auth.NewAuthMiddleware(panelAuth.Tokens(), store.Staff),
		Permissions:    authz,
		Onboard:        store.Users,
		Gatherer:       prometheus.NewRegistry(),
	})
	return &testServer{app: app, db: db, panelAuth: panelAuth}
}

// staff adds an MFA-verified member in onboardState and returns a panel token for them.
func (s *testServer) staff(t *testing.T, userID string, onboardState domain.OnboardState, positions ...string) string {
	t.Helper()
	s.db.PutMember(domain.StaffMember{UserID: userID, PositionIDs: positions, MFAVerified: true})
	s.db.PutUser(domain.StaffOnboardRecord{UserID: userID, State: onboardState})
	token, _, err := s.panelAuth.Tokens().GenerateToken(userID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	status, body := s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/metrics", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestUnknownRouteKeepsStatus(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, fiber.MethodGet, "/queue", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/queue", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPanelRequiresCompletedOnboarding(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.staff(t, "100", domain.OnboardTestingBot, "reviewer")

	status, body := s.do(t, fiber.MethodGet, "/queue", token, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(body))

	// Rotating the panel token does not depend on onboarding.
	status, _ = s.do(t, fiber.MethodPost, "/auth/panel/token", token, nil)
	assert.Equal(t, fiber.StatusCreated, status)
}

func TestPanelLoginFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.staff(t, "100", domain.OnboardComplete, "reviewer")
	apiToken, err := s.panelAuth.RotateAPIToken(context.Background(), "100")
	require.NoError(t, err)

	status, body := s.do(t, fiber.MethodPost, "/auth/panel/login", "", map[string]string{"user_id": "100", "api_token": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, fiber.MethodPost, "/auth/panel/login", "", map[string]string{"user_id": "100", "api_token": apiToken})
	require.Equal(t, fiber.StatusOK, status)
	session := body["data"].(map[string]any)["token"].(string)

	status, _ = s.do(t, fiber.MethodGet, "/queue", session, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestQueueClaimOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.staff(t, "100", domain.OnboardComplete, "reviewer")
	s.db.PutBot(domain.BotReviewRecord{BotID: "b1", Type: domain.BotTypePending})

	status, body := s.do(t, fiber.MethodPost, "/queue/b1/claim", token, map[string]bool{"force": false})
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "b1", data["bot_id"])
	assert.Equal(t, "100", data["claimed_by"])

	status, body = s.do(t, fiber.MethodGet, "/queue", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, fiber.MethodPost, "/queue/b1/unclaim", token, map[string]string{"reason": "busy"})
	assert.Equal(t, fiber.StatusForbidden, status, "reviewer lacks bots.unclaim")
	assert.NotEmpty(t, errorCode(body))
}

func TestRPCMethodsAreFilteredByPerms(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.staff(t, "100", domain.OnboardComplete, "reviewer")

	status, body := s.do(t, fiber.MethodGet, "/rpc/methods", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var names []string
	for _, m := range body["data"].([]any) {
		names = append(names, m.(map[string]any)["method"].(string))
	}
	assert.ElementsMatch(t, []string{"Approve", "Deny"}, names)

	status, body = s.do(t, fiber.MethodPost, "/rpc/NoSuchMethod", token, map[string]string{})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestDisciplinaryListingIsGated(t *testing.T) {
	s := newTestServer(t, nil)
	reviewer := s.staff(t, "100", domain.OnboardComplete, "reviewer")
	manager := s.staff(t, "200", domain.OnboardComplete, "manager")

	status, _ := s.do(t, fiber.MethodGet, "/staff/disciplinaries/200", reviewer, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := s.do(t, fiber.MethodGet, "/staff/disciplinaries/me", reviewer, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["data"])

	status, _ = s.do(t, fiber.MethodGet, "/staff/disciplinaries/100", manager, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestBadPayloadsAreValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, fiber.MethodPost, "/onboarding/code", "", map[string]string{"session": " "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	manager := s.staff(t, "200", domain.OnboardComplete, "manager")
	req := httptest.NewRequest(fiber.MethodPost, "/staff/disciplinaries", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+manager)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
