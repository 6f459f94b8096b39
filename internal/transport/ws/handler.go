// Package ws serves the GraphQL channel: a WebSocket endpoint that accepts
// query/mutation/subscription operations as JSON messages and pushes
// subscription events back on the same connection.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/apulibrary/backend/internal/domain"
	"github.com/apulibrary/backend/internal/subscription"
	"github.com/apulibrary/backend/internal/transport/graphql"
	"github.com/apulibrary/backend/internal/transport/graphql/dataloader"
)

// Envelope is the wire format of every channel message sent to the client.
// More reports whether further messages for the same operation may follow:
// true for subscription acks and pushes, false for final query and mutation
// results.
type Envelope struct {
	Result *graphql.Response `json:"result"`
	More   bool              `json:"more"`
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// channel protocol on them.
type Handler struct {
	log      *slog.Logger
	exec     *graphql.Executor
	registry *subscription.Registry
	repos    *dataloader.Repos
	upgrader websocket.Upgrader
	maxMsg   int64
}

// NewHandler creates a channel handler. maxMsg bounds inbound message size
// in bytes.
func NewHandler(log *slog.Logger, exec *graphql.Executor, registry *subscription.Registry, repos *dataloader.Repos, maxMsg int64) *Handler {
	return &Handler{
		log:      log.With(slog.String("component", "channel")),
		exec:     exec,
		registry: registry,
		repos:    repos,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware in front of
			// the upgrade request.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		maxMsg: maxMsg,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(h.maxMsg)

	c := &connection{conn: conn}
	tracked := make(map[uuid.UUID]struct{})

	defer func() {
		// Disconnect cleanup: every subscription this connection opened is
		// removed from the shared registry, no matter how the connection
		// ended. Unsubscribe is idempotent, so a racing explicit
		// unsubscribe is harmless.
		for id := range tracked {
			h.registry.Unsubscribe(id)
		}
		conn.Close()
		h.log.Debug("connection closed", slog.Int("subscriptions_cleaned", len(tracked)))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(r, c, tracked, data)
	}
}

func (h *Handler) handleMessage(r *http.Request, c *connection, tracked map[uuid.UUID]struct{}, data []byte) {
	var req graphql.Request
	if err := json.Unmarshal(data, &req); err != nil {
		h.send(c, &Envelope{
			Result: &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("invalid message")}},
			More:   false,
		})
		return
	}

	p, errs := h.exec.Prepare(&req)
	if len(errs) > 0 {
		// Malformed operation: report it and keep the connection open.
		h.send(c, &Envelope{Result: &graphql.Response{Errors: errs}, More: false})
		return
	}

	if p.IsSubscription() {
		h.startSubscription(r, c, tracked, p)
		return
	}

	// Queries and mutations get fresh per-message loaders, same as an HTTP
	// request gets per-request ones.
	ctx := dataloader.WithLoaders(r.Context(), dataloader.NewLoaders(h.repos))
	resp := h.exec.ExecutePrepared(ctx, p)
	h.send(c, &Envelope{Result: resp, More: false})
}

func (h *Handler) startSubscription(r *http.Request, c *connection, tracked map[uuid.UUID]struct{}, p *graphql.PreparedOp) {
	if p.RootField() != "itemAdded" {
		h.send(c, &Envelope{
			Result: &graphql.Response{Errors: gqlerror.List{
				gqlerror.Errorf("unknown subscription %q", p.RootField()),
			}},
			More: false,
		})
		return
	}

	connCtx := r.Context()
	id := h.registry.Subscribe(subscription.TopicItemAdded, func(event domain.ItemWithOwner) {
		resp := h.exec.ResolveItemAdded(connCtx, p, event)
		if err := c.writeJSON(&Envelope{Result: resp, More: true}); err != nil {
			h.log.Debug("push dropped", slog.String("error", err.Error()))
		}
	})
	tracked[id] = struct{}{}

	// Registration ack: no result yet, pushes will follow.
	h.send(c, &Envelope{Result: nil, More: true})
}

func (h *Handler) send(c *connection, env *Envelope) {
	if err := c.writeJSON(env); err != nil {
		h.log.Debug("write failed", slog.String("error", err.Error()))
	}
}

// connection serializes writes: the read loop replies to messages while
// registry fan-out pushes from publisher goroutines, and gorilla connections
// allow only one concurrent writer.
type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
