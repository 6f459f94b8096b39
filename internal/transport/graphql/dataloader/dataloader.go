// Package dataloader provides per-request DataLoaders for batching GraphQL
// resolver queries into single SQL calls. The owner loader is what keeps the
// items query at a bounded number of round-trips: one query for the items,
// one batched query for every referenced user.
package dataloader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/apulibrary/backend/internal/domain"
)

const (
	maxBatch = 100
	wait     = 2 * time.Millisecond
)

// ---------------------------------------------------------------------------
// Repository interfaces (consumer-defined)
// ---------------------------------------------------------------------------

type ownerRepo interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
}

type itemRepo interface {
	GetByOwnerIDs(ctx context.Context, ownerIDs []uuid.UUID) ([]domain.Item, error)
}

// Repos holds all repositories required by DataLoaders.
type Repos struct {
	Owner ownerRepo
	Item  itemRepo
}

// ---------------------------------------------------------------------------
// Loaders holds all per-request DataLoader instances.
// ---------------------------------------------------------------------------

// Loaders contains the per-request DataLoaders. Created via NewLoaders once
// per request (loaders cache results within a single request).
type Loaders struct {
	OwnerByID      *dataloader.Loader[uuid.UUID, domain.User]
	ItemsByOwnerID *dataloader.Loader[uuid.UUID, []domain.Item]
}

// NewLoaders creates a new set of DataLoaders backed by the given repositories.
func NewLoaders(repos *Repos) *Loaders {
	return &Loaders{
		OwnerByID:      newLoader(newOwnerBatchFn(repos.Owner)),
		ItemsByOwnerID: newLoader(newItemsBatchFn(repos.Item)),
	}
}

// newLoader creates a dataloader.Loader with standard batch parameters.
func newLoader[V any](batchFn dataloader.BatchFunc[uuid.UUID, V]) *dataloader.Loader[uuid.UUID, V] {
	return dataloader.NewBatchedLoader(
		batchFn,
		dataloader.WithWait[uuid.UUID, V](wait),
		dataloader.WithBatchCapacity[uuid.UUID, V](maxBatch),
	)
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type contextKey string

const loadersKey contextKey = "dataloaders"

// WithLoaders stores Loaders in the context.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// FromContext retrieves Loaders from the context.
// Panics if loaders are not present (indicates middleware misconfiguration).
func FromContext(ctx context.Context) *Loaders {
	l, ok := ctx.Value(loadersKey).(*Loaders)
	if !ok || l == nil {
		panic("dataloader: loaders not found in context, is middleware configured?")
	}
	return l
}
