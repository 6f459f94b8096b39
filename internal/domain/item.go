package domain

import (
	"time"

	"github.com/google/uuid"
)

// Item is a catalogued media entry (movie, book, ...). Every item belongs
// to exactly one user; items are destroyed together with their owner.
type Item struct {
	ID          uuid.UUID
	Title       string
	Description string
	ImageURL    string
	UserID      uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemWithOwner is an item joined with its owning user, as returned by the
// eager-loading list query.
type ItemWithOwner struct {
	Item
	Owner User
}
