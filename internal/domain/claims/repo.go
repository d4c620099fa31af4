package claims

import (
	"context"

	"github.com/claims/claims/internal/platform/dynamo"
)

// Repository is the persistence boundary for claim records. All listing
// operations page with an opaque cursor and exclude user rows, which share
// the table and the UserIndex.
type Repository interface {
	GetByID(ctx context.Context, claimID string) (*Claim, error)
	Put(ctx context.Context, cl *Claim) error

	// UpdateFields sets the given attributes on an existing claim and
	// returns the stored record. A missing claim is dynamo.ErrNotFound.
	UpdateFields(ctx context.Context, claimID string, fields map[string]string) (*Claim, error)

	ListByUser(ctx context.Context, userID string, page dynamo.Page) ([]*Claim, string, error)
	ListAll(ctx context.Context, page dynamo.Page) ([]*Claim, string, error)
	ListByStatus(ctx context.Context, status string, page dynamo.Page) ([]*Claim, string, error)
	ListByPatient(ctx context.Context, patientID string, page dynamo.Page) ([]*Claim, string, error)
}
