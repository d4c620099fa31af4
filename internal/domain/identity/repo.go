package identity

import (
	"context"

	"github.com/claims/claims/internal/platform/dynamo"
)

type Repository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPatientID(ctx context.Context, patientID string) (*User, error)
	Create(ctx context.Context, u *User) error

	// CreateIfAbsent writes the user only when the key is free, returning
	// dynamo.ErrConditionFailed when it is not. Admin seeding relies on it.
	CreateIfAbsent(ctx context.Context, u *User) error

	List(ctx context.Context, page dynamo.Page) ([]*User, string, error)
	Delete(ctx context.Context, userID string) error
}
