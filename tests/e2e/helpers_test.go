//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	itemrepo "github.com/apulibrary/backend/internal/adapter/postgres/item"
	"github.com/apulibrary/backend/internal/adapter/postgres/testhelper"
	userrepo "github.com/apulibrary/backend/internal/adapter/postgres/user"
	authpkg "github.com/apulibrary/backend/internal/auth"
	"github.com/apulibrary/backend/internal/config"
	"github.com/apulibrary/backend/internal/service/catalog"
	"github.com/apulibrary/backend/internal/subscription"
	gqlpkg "github.com/apulibrary/backend/internal/transport/graphql"
	"github.com/apulibrary/backend/internal/transport/graphql/dataloader"
	"github.com/apulibrary/backend/internal/transport/graphql/resolver"
	"github.com/apulibrary/backend/internal/transport/middleware"
	"github.com/apulibrary/backend/internal/transport/rest"
	"github.com/apulibrary/backend/internal/transport/ws"
)

// ---------------------------------------------------------------------------
// GraphQL assertion / extraction helpers.
// ---------------------------------------------------------------------------

// gqlData extracts the "data" map from a GraphQL response.
func gqlData(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	data, ok := result["data"].(map[string]any)
	require.True(t, ok, "expected data object in response")
	return data
}

// gqlPayload extracts a specific field from the data map.
func gqlPayload(t *testing.T, result map[string]any, field string) map[string]any {
	t.Helper()
	data := gqlData(t, result)
	payload, ok := data[field].(map[string]any)
	require.True(t, ok, "expected %q in data", field)
	return payload
}

// gqlErrorCode extracts the error code from the first GraphQL error.
func gqlErrorCode(t *testing.T, result map[string]any) string {
	t.Helper()
	errors, ok := result["errors"].([]any)
	require.True(t, ok, "expected errors array")
	require.NotEmpty(t, errors)

	firstErr, ok := errors[0].(map[string]any)
	require.True(t, ok)
	extensions, ok := firstErr["extensions"].(map[string]any)
	require.True(t, ok, "expected extensions in error")

	code, ok := extensions["code"].(string)
	require.True(t, ok, "expected code string in extensions")
	return code
}

// requireNoErrors asserts that the GraphQL response has no errors.
func requireNoErrors(t *testing.T, result map[string]any) {
	t.Helper()
	if errs, ok := result["errors"]; ok && errs != nil {
		t.Fatalf("unexpected GraphQL errors: %v", errs)
	}
}

// ---------------------------------------------------------------------------
// testServer wraps the full-stack HTTP server for E2E tests.
// ---------------------------------------------------------------------------

type testServer struct {
	URL    string
	Client *http.Client
	Pool   *pgxpool.Pool
	jwt    *authpkg.JWTManager
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// setupTestServer bootstraps the full application stack backed by a real
// PostgreSQL container (shared via testhelper).
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	pool := testhelper.SetupTestDB(t)
	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, nil))

	users := userrepo.New(pool)
	items := itemrepo.New(pool)
	registry := subscription.NewRegistry(logger)
	svc := catalog.NewService(logger, items, users, registry)

	jwtMgr := authpkg.NewJWTManager("test-secret-at-least-32-chars-long!!", "test-issuer", 15*time.Minute)

	res := resolver.NewResolver(logger, svc)
	exec := gqlpkg.NewExecutor(res, gqlpkg.NewErrorPresenter(logger))
	repos := &dataloader.Repos{Owner: users, Item: items}

	gqlHandler := gqlpkg.NewHandler(logger, exec, 1<<20)
	channelHandler := ws.NewHandler(logger, exec, registry, repos, 1<<20)
	healthHandler := rest.NewHealthHandler(pool, registry, subscription.TopicItemAdded, "test-version")

	mux := http.NewServeMux()
	mux.Handle("/graphql", dataloader.Middleware(repos)(gqlHandler))
	mux.Handle("/channel", channelHandler)
	mux.HandleFunc("/live", healthHandler.Live)
	mux.HandleFunc("/ready", healthHandler.Ready)
	mux.HandleFunc("/health", healthHandler.Health)

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.CORS(config.CORSConfig{
			AllowedOrigins:   "*",
			AllowedMethods:   "GET,POST,OPTIONS",
			AllowedHeaders:   "Authorization,Content-Type",
			AllowCredentials: true,
			MaxAge:           86400,
		}),
		middleware.Auth(jwtMgr),
	)

	srv := httptest.NewServer(chain(mux))
	t.Cleanup(srv.Close)

	return &testServer{
		URL:    srv.URL,
		Client: srv.Client(),
		Pool:   pool,
		jwt:    jwtMgr,
	}
}

// graphqlQuery sends a GraphQL POST request and returns status + decoded body.
func (ts *testServer) graphqlQuery(t *testing.T, query string, variables map[string]any, token string) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp.StatusCode, result
}

// dialChannel opens a WebSocket connection to the channel endpoint.
func (ts *testServer) dialChannel(t *testing.T, token string) *gorillaws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/channel"
	if token != "" {
		url += "?access_token=" + token
	}
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// channelEnvelope is the decoded channel wire envelope.
type channelEnvelope struct {
	Result map[string]any `json:"result"`
	More   bool           `json:"more"`
}

func readChannel(t *testing.T, conn *gorillaws.Conn) *channelEnvelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env channelEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return &env
}

// createUser registers a user through the API and returns its id and a
// bearer token for it.
func (ts *testServer) createUser(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()

	_, result := ts.graphqlQuery(t, `
		mutation($email: String!) {
			createUser(email: $email, firstName: "Test", lastName: "User") { id }
		}`,
		map[string]any{"email": email}, "")
	requireNoErrors(t, result)

	payload := gqlPayload(t, result, "createUser")
	id, err := uuid.Parse(payload["id"].(string))
	require.NoError(t, err)

	token, err := ts.jwt.GenerateToken(id)
	require.NoError(t, err)
	return id, token
}

// subscriptionCount reads the live subscription gauge from /health.
func (ts *testServer) subscriptionCount(t *testing.T) int {
	t.Helper()

	resp, err := ts.Client.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Subscriptions int `json:"subscriptions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Subscriptions
}

// uniqueEmail returns an email unused by other tests sharing the database.
func uniqueEmail(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@example.com"
}
