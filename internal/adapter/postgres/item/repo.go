// Package item implements the Item repository using PostgreSQL.
package item

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apulibrary/backend/internal/adapter/postgres"
	"github.com/apulibrary/backend/internal/domain"
)

const table = "items"

var columns = []string{"id", "title", "description", "image_url", "user_id", "created_at", "updated_at"}

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides item persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new item repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// List returns all items. Owners are attached by the caller through the
// batched user lookup, keeping the whole items query at two round-trips.
func (r *Repo) List(ctx context.Context) ([]domain.Item, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	sql, args, err := builder.Select(columns...).From(table).OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "item")
	}
	defer rows.Close()

	return collectItems(rows)
}

// GetByID returns an item by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	sql, args, err := builder.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	it, err := scanItem(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, postgres.MapError(err, "item")
	}
	return it, nil
}

// GetByOwnerIDs returns all items owned by any of the given users in a
// single round-trip. Used by the items-by-owner DataLoader.
func (r *Repo) GetByOwnerIDs(ctx context.Context, ownerIDs []uuid.UUID) ([]domain.Item, error) {
	if len(ownerIDs) == 0 {
		return []domain.Item{}, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	sql, args, err := builder.Select(columns...).From(table).
		Where(sq.Eq{"user_id": ownerIDs}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "item")
	}
	defer rows.Close()

	return collectItems(rows)
}

// Create inserts a new item and returns the persisted row.
func (r *Repo) Create(ctx context.Context, it *domain.Item) (*domain.Item, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	sql, args, err := builder.Insert(table).
		Columns("id", "title", "description", "image_url", "user_id").
		Values(it.ID, it.Title, it.Description, it.ImageURL, it.UserID).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	created, err := scanItem(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, postgres.MapError(err, "item")
	}
	return created, nil
}

// Update modifies the non-nil fields of an item and returns the updated row.
func (r *Repo) Update(ctx context.Context, id uuid.UUID, title, description, imageURL *string) (*domain.Item, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	update := builder.Update(table).Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
	if title != nil {
		update = update.Set("title", *title)
	}
	if description != nil {
		update = update.Set("description", *description)
	}
	if imageURL != nil {
		update = update.Set("image_url", *imageURL)
	}

	sql, args, err := update.Suffix("RETURNING " + strings.Join(columns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	updated, err := scanItem(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, postgres.MapError(err, "item")
	}
	return updated, nil
}

// Delete removes an item by primary key.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	sql, args, err := builder.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "item")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func collectItems(rows pgx.Rows) ([]domain.Item, error) {
	items := []domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, postgres.MapError(err, "item")
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "item")
	}
	return items, nil
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.ImageURL, &it.UserID, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
