// Package catalog implements item and user operations for the library.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/apulibrary/backend/internal/domain"
	"github.com/apulibrary/backend/internal/subscription"
	"github.com/apulibrary/backend/pkg/ctxutil"
)

// itemRepo defines the item repository interface needed by the service.
type itemRepo interface {
	List(ctx context.Context) ([]domain.Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	Create(ctx context.Context, it *domain.Item) (*domain.Item, error)
	Update(ctx context.Context, id uuid.UUID, title, description, imageURL *string) (*domain.Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// userRepo defines the user repository interface needed by the service.
type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
}

// dispatcher publishes item events to the subscription registry. Delivery
// is a plain synchronous fan-out call; the service never waits on
// subscribers.
type dispatcher interface {
	Publish(ctx context.Context, topic string, event domain.ItemWithOwner)
}

// Service implements catalog operations.
type Service struct {
	log    *slog.Logger
	items  itemRepo
	users  userRepo
	events dispatcher
}

// NewService creates a new catalog service instance.
func NewService(logger *slog.Logger, items itemRepo, users userRepo, events dispatcher) *Service {
	return &Service{
		log:    logger.With("service", "catalog"),
		items:  items,
		users:  users,
		events: events,
	}
}

// ListItems returns every item in the catalog.
func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.items.List(ctx)
}

// GetItem returns an item by id.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.items.GetByID(ctx, id)
}

// CreateItem creates a new item owned by the current user and publishes the
// item-added event to all subscribers. The owner is loaded here, once, so
// that event fan-out never touches storage.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (*domain.Item, error) {
	ownerID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return nil, fmt.Errorf("create item: %w", domain.ErrUnauthorized)
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("create item: owner: %w", err)
	}

	created, err := s.items.Create(ctx, &domain.Item{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		UserID:      owner.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.events.Publish(ctx, subscription.TopicItemAdded, domain.ItemWithOwner{Item: *created, Owner: *owner})

	s.log.InfoContext(ctx, "item created",
		slog.String("item_id", created.ID.String()),
		slog.String("owner_id", ownerID.String()),
	)
	return created, nil
}

// UpdateItem modifies the provided fields of an item.
func (s *Service) UpdateItem(ctx context.Context, input UpdateItemInput) (*domain.Item, error) {
	if _, ok := ctxutil.UserIDFromCtx(ctx); !ok {
		return nil, fmt.Errorf("update item: %w", domain.ErrUnauthorized)
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	updated, err := s.items.Update(ctx, input.ID, input.Title, input.Description, input.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if _, ok := ctxutil.UserIDFromCtx(ctx); !ok {
		return fmt.Errorf("delete item: %w", domain.ErrUnauthorized)
	}
	return s.items.Delete(ctx, id)
}

// CreateUser registers a new user.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	created, err := s.users.Create(ctx, &domain.User{
		ID:        uuid.New(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user created", slog.String("user_id", created.ID.String()))
	return created, nil
}

// GetUserByEmail looks a user up by email address.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, email)
}
