package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/claims/claims/internal/platform/dynamo"
)

// lookupPageSize bounds each scan page during credential lookups. Login
// scans the table, so pages are kept large to finish in few round trips.
const lookupPageSize = 200

type userRepoDynamo struct {
	store *dynamo.Store
}

func NewRepo(store *dynamo.Store) Repository {
	return &userRepoDynamo{store: store}
}

func (r *userRepoDynamo) GetByID(ctx context.Context, userID string) (*User, error) {
	item, err := r.store.Get(ctx, UserKey(userID))
	if err != nil {
		return nil, err
	}
	return unmarshalUser(item)
}

func (r *userRepoDynamo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, &dynamo.Predicate{
		Expr:  "begins_with(#k, :prefix) AND #e = :email",
		Names: map[string]string{"#k": dynamo.KeyAttr, "#e": "email"},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
			":email":  &types.AttributeValueMemberS{Value: email},
		},
	})
}

func (r *userRepoDynamo) FindByPatientID(ctx context.Context, patientID string) (*User, error) {
	// Claim rows denormalize patient_id too, so the key prefix filter is
	// what keeps this from matching a claim.
	return r.findOne(ctx, &dynamo.Predicate{
		Expr:  "begins_with(#k, :prefix) AND #p = :pid",
		Names: map[string]string{"#k": dynamo.KeyAttr, "#p": "patient_id"},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
			":pid":    &types.AttributeValueMemberS{Value: patientID},
		},
	})
}

// findOne pages through a filtered scan until a match or the end of the
// table. Filtered pages can be empty before the table is exhausted.
func (r *userRepoDynamo) findOne(ctx context.Context, pred *dynamo.Predicate) (*User, error) {
	var cursor string
	for {
		items, next, err := r.store.Scan(ctx, pred, dynamo.Page{Limit: lookupPageSize, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return unmarshalUser(items[0])
		}
		if next == "" {
			return nil, dynamo.ErrNotFound
		}
		cursor = next
	}
}

func (r *userRepoDynamo) Create(ctx context.Context, u *User) error {
	item, err := marshalUser(u)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, item)
}

func (r *userRepoDynamo) CreateIfAbsent(ctx context.Context, u *User) error {
	item, err := marshalUser(u)
	if err != nil {
		return err
	}
	return r.store.PutIfAbsent(ctx, item)
}

func (r *userRepoDynamo) List(ctx context.Context, page dynamo.Page) ([]*User, string, error) {
	pred := &dynamo.Predicate{
		Expr:  "begins_with(#k, :prefix)",
		Names: map[string]string{"#k": dynamo.KeyAttr},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
		},
	}

	items, next, err := r.store.Scan(ctx, pred, page)
	if err != nil {
		return nil, "", err
	}

	users := make([]*User, 0, len(items))
	for _, item := range items {
		u, err := unmarshalUser(item)
		if err != nil {
			return nil, "", err
		}
		users = append(users, u)
	}
	return users, next, nil
}

func (r *userRepoDynamo) Delete(ctx context.Context, userID string) error {
	// Read first so deleting an unknown user reports ErrNotFound instead of
	// silently succeeding.
	if _, err := r.store.Get(ctx, UserKey(userID)); err != nil {
		return err
	}
	return r.store.Delete(ctx, UserKey(userID))
}

func marshalUser(u *User) (dynamo.Item, error) {
	if u.Key == "" {
		u.Key = UserKey(u.UserID)
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	return item, nil
}

func unmarshalUser(item dynamo.Item) (*User, error) {
	var u User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}
