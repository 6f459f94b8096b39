package item_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apulibrary/backend/internal/adapter/postgres/item"
	"github.com/apulibrary/backend/internal/adapter/postgres/testhelper"
	"github.com/apulibrary/backend/internal/adapter/postgres/user"
	"github.com/apulibrary/backend/internal/domain"
)

func newRepos(t *testing.T) (*item.Repo, *user.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return item.New(pool), user.New(pool), pool
}

func seedUser(t *testing.T, users *user.Repo) *domain.User {
	t.Helper()
	u, err := users.Create(context.Background(), &domain.User{
		ID:        uuid.New(),
		Email:     "owner-" + uuid.New().String()[:8] + "@example.com",
		FirstName: "Owner",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedItem(t *testing.T, items *item.Repo, ownerID uuid.UUID, title string) *domain.Item {
	t.Helper()
	it, err := items.Create(context.Background(), &domain.Item{
		ID:          uuid.New(),
		Title:       title,
		Description: "desc of " + title,
		ImageURL:    "https://img.example.com/" + title,
		UserID:      ownerID,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return it
}

func TestRepo_Create_And_GetByID(t *testing.T) {
	t.Parallel()
	items, users, _ := newRepos(t)
	owner := seedUser(t, users)

	created := seedItem(t, items, owner.ID, "The Odyssey")

	got, err := items.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "The Odyssey" || got.UserID != owner.ID {
		t.Errorf("unexpected item: %+v", got)
	}
}

func TestRepo_Create_UnknownOwner(t *testing.T) {
	t.Parallel()
	items, _, _ := newRepos(t)

	_, err := items.Create(context.Background(), &domain.Item{
		ID:          uuid.New(),
		Title:       "orphan",
		Description: "no owner",
		ImageURL:    "https://img.example.com/orphan",
		UserID:      uuid.New(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for FK violation, got %v", err)
	}
}

func TestRepo_GetByOwnerIDs(t *testing.T) {
	t.Parallel()
	items, users, _ := newRepos(t)
	ownerA := seedUser(t, users)
	ownerB := seedUser(t, users)

	seedItem(t, items, ownerA.ID, "a1")
	seedItem(t, items, ownerA.ID, "a2")
	seedItem(t, items, ownerB.ID, "b1")

	got, err := items.GetByOwnerIDs(context.Background(), []uuid.UUID{ownerA.ID, ownerB.ID})
	if err != nil {
		t.Fatalf("GetByOwnerIDs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}

	onlyA, err := items.GetByOwnerIDs(context.Background(), []uuid.UUID{ownerA.ID})
	if err != nil {
		t.Fatalf("GetByOwnerIDs: %v", err)
	}
	if len(onlyA) != 2 {
		t.Fatalf("expected 2 items for owner A, got %d", len(onlyA))
	}
}

func TestRepo_Update_PartialFields(t *testing.T) {
	t.Parallel()
	items, users, _ := newRepos(t)
	owner := seedUser(t, users)
	created := seedItem(t, items, owner.ID, "before")

	title := "after"
	got, err := items.Update(context.Background(), created.ID, &title, nil, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "after" {
		t.Errorf("expected updated title, got %q", got.Title)
	}
	if got.Description != created.Description {
		t.Errorf("description should be unchanged, got %q", got.Description)
	}
}

func TestRepo_Update_NotFound(t *testing.T) {
	t.Parallel()
	items, _, _ := newRepos(t)

	title := "x"
	_, err := items.Update(context.Background(), uuid.New(), &title, nil, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_CascadeDelete_OwnerDestroysItems(t *testing.T) {
	t.Parallel()
	items, users, _ := newRepos(t)
	owner := seedUser(t, users)
	it := seedItem(t, items, owner.ID, "doomed")

	if err := users.Delete(context.Background(), owner.ID); err != nil {
		t.Fatalf("delete owner: %v", err)
	}

	if _, err := items.GetByID(context.Background(), it.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected item to cascade away, got %v", err)
	}
}
