package ws_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/apulibrary/backend/internal/domain"
	"github.com/apulibrary/backend/internal/service/catalog"
	"github.com/apulibrary/backend/internal/subscription"
	"github.com/apulibrary/backend/internal/transport/graphql"
	"github.com/apulibrary/backend/internal/transport/graphql/dataloader"
	"github.com/apulibrary/backend/internal/transport/graphql/resolver"
	"github.com/apulibrary/backend/internal/transport/ws"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type catalogMock struct {
	items []domain.Item
}

func (m *catalogMock) ListItems(context.Context) ([]domain.Item, error) {
	return m.items, nil
}

func (m *catalogMock) CreateItem(_ context.Context, input catalog.CreateItemInput) (*domain.Item, error) {
	return &domain.Item{ID: uuid.New(), Title: input.Title}, nil
}

func (m *catalogMock) UpdateItem(context.Context, catalog.UpdateItemInput) (*domain.Item, error) {
	return nil, domain.ErrNotFound
}

func (m *catalogMock) CreateUser(context.Context, catalog.CreateUserInput) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (m *catalogMock) GetUserByEmail(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

type ownerRepoMock struct{}

func (ownerRepoMock) GetByIDs(context.Context, []uuid.UUID) ([]domain.User, error) {
	return nil, nil
}

type itemRepoMock struct{}

func (itemRepoMock) GetByOwnerIDs(context.Context, []uuid.UUID) ([]domain.Item, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	srv      *httptest.Server
	registry *subscription.Registry
}

func newFixture(t *testing.T, mock *catalogMock) *fixture {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	registry := subscription.NewRegistry(log)
	res := resolver.NewResolver(log, mock)
	exec := graphql.NewExecutor(res, graphql.NewErrorPresenter(log))
	repos := &dataloader.Repos{Owner: ownerRepoMock{}, Item: itemRepoMock{}}

	handler := ws.NewHandler(log, exec, registry, repos, 1<<20)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, registry: registry}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *ws.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env ws.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return &env
}

func send(t *testing.T, conn *websocket.Conn, req *graphql.Request) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestChannel_QueryRoundTrip(t *testing.T) {
	f := newFixture(t, &catalogMock{items: []domain.Item{
		{ID: uuid.New(), Title: "Camera"},
		{ID: uuid.New(), Title: "Record"},
	}})
	conn := f.dial(t)

	send(t, conn, &graphql.Request{Query: `{ items { title } }`})
	env := readEnvelope(t, conn)

	require.False(t, env.More, "query results are final")
	require.NotNil(t, env.Result)
	require.Empty(t, env.Result.Errors)

	items := env.Result.Data["items"].([]interface{})
	require.Len(t, items, 2)
}

func TestChannel_SubscribeAckThenPush(t *testing.T) {
	f := newFixture(t, &catalogMock{})
	conn := f.dial(t)

	send(t, conn, &graphql.Request{Query: `subscription { itemAdded { title user { email } } }`})

	ack := readEnvelope(t, conn)
	require.Nil(t, ack.Result, "registration carries no result")
	require.True(t, ack.More, "pushes follow a registration")

	event := domain.ItemWithOwner{
		Item:  domain.Item{ID: uuid.New(), Title: "Camera", UserID: uuid.New()},
		Owner: domain.User{ID: uuid.New(), Email: "owner@example.com"},
	}
	f.registry.Publish(context.Background(), subscription.TopicItemAdded, event)

	push := readEnvelope(t, conn)
	require.True(t, push.More)
	require.NotNil(t, push.Result)
	require.Empty(t, push.Result.Errors)

	payload := push.Result.Data["itemAdded"].(map[string]interface{})
	require.Equal(t, "Camera", payload["title"])
	require.Equal(t, "owner@example.com", payload["user"].(map[string]interface{})["email"])
}

func TestChannel_MalformedQueryKeepsConnectionOpen(t *testing.T) {
	f := newFixture(t, &catalogMock{items: []domain.Item{{ID: uuid.New(), Title: "Camera"}}})
	conn := f.dial(t)

	send(t, conn, &graphql.Request{Query: `{ items { nosuchfield } }`})
	env := readEnvelope(t, conn)
	require.NotEmpty(t, env.Result.Errors)
	require.False(t, env.More)

	// The connection survives the bad operation.
	send(t, conn, &graphql.Request{Query: `{ items { title } }`})
	env = readEnvelope(t, conn)
	require.Empty(t, env.Result.Errors)
	require.Len(t, env.Result.Data["items"].([]interface{}), 1)
}

func TestChannel_InvalidJSONKeepsConnectionOpen(t *testing.T) {
	f := newFixture(t, &catalogMock{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := readEnvelope(t, conn)
	require.NotEmpty(t, env.Result.Errors)

	send(t, conn, &graphql.Request{Query: `{ items { title } }`})
	env = readEnvelope(t, conn)
	require.Empty(t, env.Result.Errors)
}

func TestChannel_UnknownSubscriptionRejected(t *testing.T) {
	f := newFixture(t, &catalogMock{})
	conn := f.dial(t)

	send(t, conn, &graphql.Request{Query: `subscription { somethingElse { id } }`})
	env := readEnvelope(t, conn)
	require.NotEmpty(t, env.Result.Errors)
	require.False(t, env.More)
	require.Zero(t, f.registry.Count(subscription.TopicItemAdded))
}

func TestChannel_DisconnectCleansUpSubscriptions(t *testing.T) {
	f := newFixture(t, &catalogMock{})
	conn := f.dial(t)

	// Several subscriptions on one connection.
	const k = 3
	for i := 0; i < k; i++ {
		send(t, conn, &graphql.Request{Query: `subscription { itemAdded { id } }`})
		ack := readEnvelope(t, conn)
		require.True(t, ack.More)
	}
	require.Equal(t, k, f.registry.Count(subscription.TopicItemAdded))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return f.registry.Count(subscription.TopicItemAdded) == 0
	}, 3*time.Second, 10*time.Millisecond, "disconnect must remove every tracked subscription")
}

func TestChannel_MutationRoundTrip(t *testing.T) {
	f := newFixture(t, &catalogMock{})
	conn := f.dial(t)

	send(t, conn, &graphql.Request{
		Query: `mutation { createItem(title: "Lens", description: "", imageUrl: "") { title } }`,
	})
	env := readEnvelope(t, conn)

	require.False(t, env.More)
	require.Empty(t, env.Result.Errors)
	created := env.Result.Data["createItem"].(map[string]interface{})
	require.Equal(t, "Lens", created["title"])
}
