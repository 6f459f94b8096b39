package dataloader

import (
	"context"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/apulibrary/backend/internal/domain"
)

// ---------------------------------------------------------------------------
// Owner by ID
// ---------------------------------------------------------------------------

func newOwnerBatchFn(repo ownerRepo) dataloader.BatchFunc[uuid.UUID, domain.User] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[domain.User] {
		users, err := repo.GetByIDs(ctx, keys)
		if err != nil {
			return errorResults[domain.User](len(keys), err)
		}

		byID := make(map[uuid.UUID]domain.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}

		results := make([]*dataloader.Result[domain.User], len(keys))
		for i, key := range keys {
			if u, ok := byID[key]; ok {
				results[i] = &dataloader.Result[domain.User]{Data: u}
			} else {
				results[i] = &dataloader.Result[domain.User]{Error: domain.ErrNotFound}
			}
		}
		return results
	}
}

// ---------------------------------------------------------------------------
// Items by OwnerID
// ---------------------------------------------------------------------------

func newItemsBatchFn(repo itemRepo) dataloader.BatchFunc[uuid.UUID, []domain.Item] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[[]domain.Item] {
		items, err := repo.GetByOwnerIDs(ctx, keys)
		if err != nil {
			return errorResults[[]domain.Item](len(keys), err)
		}

		grouped := make(map[uuid.UUID][]domain.Item, len(keys))
		for _, it := range items {
			grouped[it.UserID] = append(grouped[it.UserID], it)
		}

		return mapResults(keys, grouped, emptySlice[domain.Item])
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// errorResults returns a slice of error results for all keys.
func errorResults[V any](n int, err error) []*dataloader.Result[V] {
	results := make([]*dataloader.Result[V], n)
	for i := range results {
		results[i] = &dataloader.Result[V]{Error: err}
	}
	return results
}

// mapResults maps grouped results back to key order, using defaultFn for missing keys.
func mapResults[V any](keys []uuid.UUID, grouped map[uuid.UUID]V, defaultFn func() V) []*dataloader.Result[V] {
	results := make([]*dataloader.Result[V], len(keys))
	for i, key := range keys {
		if v, ok := grouped[key]; ok {
			results[i] = &dataloader.Result[V]{Data: v}
		} else {
			results[i] = &dataloader.Result[V]{Data: defaultFn()}
		}
	}
	return results
}

// emptySlice returns a non-nil empty slice.
func emptySlice[T any]() []T {
	return []T{}
}
