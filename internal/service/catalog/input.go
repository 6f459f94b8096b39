package catalog

import (
	"strings"

	"github.com/google/uuid"

	"github.com/apulibrary/backend/internal/domain"
)

// CreateItemInput holds parameters for the create-item operation.
type CreateItemInput struct {
	Title       string
	Description string
	ImageURL    string
}

// Validate validates the create item input.
func (i CreateItemInput) Validate() error {
	var errs []domain.FieldError

	if strings.TrimSpace(i.Title) == "" {
		errs = append(errs, domain.FieldError{Field: "title", Message: "required"})
	} else if len(i.Title) > 255 {
		errs = append(errs, domain.FieldError{Field: "title", Message: "too long"})
	}

	if len(i.Description) > 4096 {
		errs = append(errs, domain.FieldError{Field: "description", Message: "too long"})
	}

	if len(i.ImageURL) > 512 {
		errs = append(errs, domain.FieldError{Field: "image_url", Message: "too long"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// UpdateItemInput holds parameters for the update-item operation.
// Nil fields are left unchanged.
type UpdateItemInput struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	ImageURL    *string
}

// Validate validates the update item input.
func (i UpdateItemInput) Validate() error {
	var errs []domain.FieldError

	if i.ID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "id", Message: "required"})
	}

	if i.Title != nil {
		if strings.TrimSpace(*i.Title) == "" {
			errs = append(errs, domain.FieldError{Field: "title", Message: "must not be empty"})
		} else if len(*i.Title) > 255 {
			errs = append(errs, domain.FieldError{Field: "title", Message: "too long"})
		}
	}

	if i.Description != nil && len(*i.Description) > 4096 {
		errs = append(errs, domain.FieldError{Field: "description", Message: "too long"})
	}

	if i.ImageURL != nil && len(*i.ImageURL) > 512 {
		errs = append(errs, domain.FieldError{Field: "image_url", Message: "too long"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// CreateUserInput holds parameters for the create-user operation.
type CreateUserInput struct {
	Email     string
	FirstName string
	LastName  string
}

// Validate validates the create user input.
func (i CreateUserInput) Validate() error {
	var errs []domain.FieldError

	if !strings.Contains(i.Email, "@") {
		errs = append(errs, domain.FieldError{Field: "email", Message: "invalid"})
	}
	if strings.TrimSpace(i.FirstName) == "" {
		errs = append(errs, domain.FieldError{Field: "first_name", Message: "required"})
	}
	if strings.TrimSpace(i.LastName) == "" {
		errs = append(errs, domain.FieldError{Field: "last_name", Message: "required"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}
