// Package resolver contains the root GraphQL resolver. Resolvers are thin:
// they delegate to the catalog service and leave field projection and
// batching to the executor and the dataloader package.
package resolver

import (
	"context"
	"log/slog"

	"github.com/apulibrary/backend/internal/domain"
	"github.com/apulibrary/backend/internal/service/catalog"
)

// catalogService defines what the resolver needs from the catalog service.
type catalogService interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	CreateItem(ctx context.Context, input catalog.CreateItemInput) (*domain.Item, error)
	UpdateItem(ctx context.Context, input catalog.UpdateItemInput) (*domain.Item, error)
	CreateUser(ctx context.Context, input catalog.CreateUserInput) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Resolver is the root resolver containing all service dependencies.
type Resolver struct {
	catalog catalogService
	log     *slog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(log *slog.Logger, catalog catalogService) *Resolver {
	return &Resolver{
		catalog: catalog,
		log:     log.With(slog.String("component", "graphql")),
	}
}

// Items returns every item in the catalogue.
func (r *Resolver) Items(ctx context.Context) ([]domain.Item, error) {
	return r.catalog.ListItems(ctx)
}

// UserByEmail finds a user by email. Returns ErrNotFound when absent; the
// executor renders that as a null user rather than an error.
func (r *Resolver) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.catalog.GetUserByEmail(ctx, email)
}

// CreateItem creates an item owned by the authenticated user.
func (r *Resolver) CreateItem(ctx context.Context, input catalog.CreateItemInput) (*domain.Item, error) {
	item, err := r.catalog.CreateItem(ctx, input)
	if err != nil {
		return nil, err
	}
	r.log.InfoContext(ctx, "item created", slog.String("item_id", item.ID.String()))
	return item, nil
}

// UpdateItem applies a partial update to an item.
func (r *Resolver) UpdateItem(ctx context.Context, input catalog.UpdateItemInput) (*domain.Item, error) {
	return r.catalog.UpdateItem(ctx, input)
}

// CreateUser registers a new user.
func (r *Resolver) CreateUser(ctx context.Context, input catalog.CreateUserInput) (*domain.User, error) {
	user, err := r.catalog.CreateUser(ctx, input)
	if err != nil {
		return nil, err
	}
	r.log.InfoContext(ctx, "user created", slog.String("user_id", user.ID.String()))
	return user, nil
}
