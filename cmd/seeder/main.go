// Command seeder populates the catalogue with fixture users and items for
// local development. It is idempotent: users are matched by email and items
// that already exist for a user are skipped.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/apulibrary/backend/internal/adapter/postgres"
	itemrepo "github.com/apulibrary/backend/internal/adapter/postgres/item"
	userrepo "github.com/apulibrary/backend/internal/adapter/postgres/user"
	"github.com/apulibrary/backend/internal/app"
	"github.com/apulibrary/backend/internal/config"
	"github.com/apulibrary/backend/internal/domain"
)

type fixture struct {
	user  domain.User
	items []domain.Item
}

var fixtures = []fixture{
	{
		user: domain.User{Email: "marge@example.com", FirstName: "Marge", LastName: "Bouvier"},
		items: []domain.Item{
			{Title: "Polaroid SX-70", Description: "Folding instant camera, working", ImageURL: "https://img.example.com/sx70.jpg"},
			{Title: "Pet Sounds LP", Description: "1966 mono pressing", ImageURL: "https://img.example.com/petsounds.jpg"},
		},
	},
	{
		user: domain.User{Email: "ned@example.com", FirstName: "Ned", LastName: "Flanders"},
		items: []domain.Item{
			{Title: "Leftorium Mug", Description: "Left-handed mug, never used", ImageURL: "https://img.example.com/mug.jpg"},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	users := userrepo.New(pool)
	items := itemrepo.New(pool)

	var seeded int
	for _, f := range fixtures {
		owner, err := users.GetByEmail(ctx, f.user.Email)
		if errors.Is(err, domain.ErrNotFound) {
			owner, err = users.Create(ctx, &f.user)
		}
		if err != nil {
			logger.Error("seed user", slog.String("email", f.user.Email), slog.String("error", err.Error()))
			os.Exit(1)
		}

		existing, err := items.GetByOwnerIDs(ctx, []uuid.UUID{owner.ID})
		if err != nil {
			logger.Error("list items", slog.String("error", err.Error()))
			os.Exit(1)
		}
		have := make(map[string]bool, len(existing))
		for _, it := range existing {
			have[it.Title] = true
		}

		for _, it := range f.items {
			if have[it.Title] {
				continue
			}
			it.UserID = owner.ID
			if _, err := items.Create(ctx, &it); err != nil {
				logger.Error("seed item", slog.String("title", it.Title), slog.String("error", err.Error()))
				os.Exit(1)
			}
			seeded++
		}
	}

	logger.Info("seeding complete", slog.Int("items_created", seeded))
}
