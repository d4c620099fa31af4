package claims

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/claims/claims/internal/platform/dynamo"
)

type claimRepoDynamo struct {
	store *dynamo.Store
}

func NewRepo(store *dynamo.Store) Repository {
	return &claimRepoDynamo{store: store}
}

func (r *claimRepoDynamo) GetByID(ctx context.Context, claimID string) (*Claim, error) {
	// A prefixed key would address a user row; treat it as absent rather
	// than decode a user record as a claim.
	if strings.HasPrefix(claimID, dynamo.UserKeyPrefix) {
		return nil, dynamo.ErrNotFound
	}
	item, err := r.store.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return unmarshalClaim(item)
}

func (r *claimRepoDynamo) Put(ctx context.Context, cl *Claim) error {
	item, err := attributevalue.MarshalMap(cl)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	return r.store.Put(ctx, item)
}

func (r *claimRepoDynamo) UpdateFields(ctx context.Context, claimID string, fields map[string]string) (*Claim, error) {
	attrs := make(dynamo.Item, len(fields))
	for name, value := range fields {
		attrs[name] = &types.AttributeValueMemberS{Value: value}
	}

	item, err := r.store.Update(ctx, claimID, attrs)
	if err != nil {
		return nil, err
	}
	return unmarshalClaim(item)
}

// ListByUser queries the UserIndex. The index carries the caller's own user
// row next to their claims, so rows with the USER# key prefix are dropped
// before decoding.
func (r *claimRepoDynamo) ListByUser(ctx context.Context, userID string, page dynamo.Page) ([]*Claim, string, error) {
	items, next, err := r.store.QueryIndex(ctx, dynamo.UserIndex, "user_id", userID, page)
	if err != nil {
		return nil, "", err
	}

	result := make([]*Claim, 0, len(items))
	for _, item := range items {
		if isUserRow(item) {
			continue
		}
		cl, err := unmarshalClaim(item)
		if err != nil {
			return nil, "", err
		}
		result = append(result, cl)
	}
	return result, next, nil
}

func (r *claimRepoDynamo) ListAll(ctx context.Context, page dynamo.Page) ([]*Claim, string, error) {
	return r.list(ctx, &dynamo.Predicate{
		Expr:  "NOT begins_with(#k, :prefix)",
		Names: map[string]string{"#k": dynamo.KeyAttr},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
		},
	}, page)
}

func (r *claimRepoDynamo) ListByStatus(ctx context.Context, status string, page dynamo.Page) ([]*Claim, string, error) {
	return r.list(ctx, &dynamo.Predicate{
		Expr:  "NOT begins_with(#k, :prefix) AND #s = :status",
		Names: map[string]string{"#k": dynamo.KeyAttr, "#s": "claim_status"},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
			":status": &types.AttributeValueMemberS{Value: status},
		},
	}, page)
}

func (r *claimRepoDynamo) ListByPatient(ctx context.Context, patientID string, page dynamo.Page) ([]*Claim, string, error) {
	// Users denormalize patient_id as well; the key prefix exclusion keeps
	// the patient's own account row out of their claim listing.
	return r.list(ctx, &dynamo.Predicate{
		Expr:  "NOT begins_with(#k, :prefix) AND #p = :pid",
		Names: map[string]string{"#k": dynamo.KeyAttr, "#p": "patient_id"},
		Values: dynamo.Item{
			":prefix": &types.AttributeValueMemberS{Value: dynamo.UserKeyPrefix},
			":pid":    &types.AttributeValueMemberS{Value: patientID},
		},
	}, page)
}

func (r *claimRepoDynamo) list(ctx context.Context, pred *dynamo.Predicate, page dynamo.Page) ([]*Claim, string, error) {
	items, next, err := r.store.Scan(ctx, pred, page)
	if err != nil {
		return nil, "", err
	}

	result := make([]*Claim, 0, len(items))
	for _, item := range items {
		cl, err := unmarshalClaim(item)
		if err != nil {
			return nil, "", err
		}
		result = append(result, cl)
	}
	return result, next, nil
}

func isUserRow(item dynamo.Item) bool {
	key, ok := item[dynamo.KeyAttr].(*types.AttributeValueMemberS)
	return ok && strings.HasPrefix(key.Value, dynamo.UserKeyPrefix)
}

func unmarshalClaim(item dynamo.Item) (*Claim, error) {
	var cl Claim
	if err := attributevalue.UnmarshalMap(item, &cl); err != nil {
		return nil, fmt.Errorf("unmarshal claim: %w", err)
	}
	return &cl, nil
}
