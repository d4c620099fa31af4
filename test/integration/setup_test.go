// Package integration exercises the full HTTP surface in-process: real
// handlers, services, repositories and token signing over in-memory stand-ins
// for DynamoDB, S3 and Secrets Manager.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claims/claims/internal/domain/claims"
	"github.com/claims/claims/internal/domain/identity"
	"github.com/claims/claims/internal/platform/auth"
	"github.com/claims/claims/internal/platform/dynamo"
	"github.com/claims/claims/internal/platform/middleware"
	"github.com/claims/claims/internal/platform/s3store"
	"github.com/claims/claims/internal/platform/secrets"
)

const (
	adminEmail    = "admin@healthcare.com"
	adminPassword = "SecureAdmin@123"
)

// memoryTable is an in-memory single-table DynamoDB. It understands exactly
// the request shapes the store emits: key lookups, conditional puts, SET
// updates, filtered scans and UserIndex queries.
type memoryTable struct {
	mu    sync.Mutex
	items map[string]dynamo.Item
}

func newMemoryTable() *memoryTable {
	return &memoryTable{items: make(map[string]dynamo.Item)}
}

func itemKey(key dynamo.Item) string {
	s, _ := key[dynamo.KeyAttr].(*types.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}

func cloneItem(item dynamo.Item) dynamo.Item {
	out := make(dynamo.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (m *memoryTable) sortedKeys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memoryTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: cloneItem(item)}, nil
}

func (m *memoryTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(params.Item)
	if params.ConditionExpression != nil {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	m.items[key] = cloneItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memoryTable) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(params.Key)
	item, ok := m.items[key]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}

	updated := cloneItem(item)
	expr := strings.TrimPrefix(aws.ToString(params.UpdateExpression), "SET ")
	for _, assign := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assign, " = ", 2)
		name := params.ExpressionAttributeNames[strings.TrimSpace(parts[0])]
		updated[name] = params.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	}

	m.items[key] = updated
	return &dynamodb.UpdateItemOutput{Attributes: cloneItem(updated)}, nil
}

func (m *memoryTable) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan pages in key order, applying the page limit before the filter the way
// DynamoDB does.
func (m *memoryTable) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.page(params.ExclusiveStartKey, params.Limit, func(item dynamo.Item) bool {
		return matchFilter(item, params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	}), nil
}

func (m *memoryTable) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attr := params.ExpressionAttributeNames["#k"]
	want, _ := params.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberS)

	out := m.page(params.ExclusiveStartKey, params.Limit, func(item dynamo.Item) bool {
		val, ok := item[attr].(*types.AttributeValueMemberS)
		return ok && want != nil && val.Value == want.Value
	})
	return &dynamodb.QueryOutput{Items: out.Items, LastEvaluatedKey: out.LastEvaluatedKey}, nil
}

func (m *memoryTable) page(startKey dynamo.Item, limit *int32, match func(dynamo.Item) bool) *dynamodb.ScanOutput {
	keys := m.sortedKeys()
	start := ""
	if startKey != nil {
		start = itemKey(startKey)
	}

	out := &dynamodb.ScanOutput{}
	var examined int32
	for _, k := range keys {
		if start != "" && k <= start {
			continue
		}
		examined++
		if match(m.items[k]) {
			out.Items = append(out.Items, cloneItem(m.items[k]))
		}
		if limit != nil && examined >= *limit {
			if k != keys[len(keys)-1] {
				out.LastEvaluatedKey = dynamo.Key(k)
			}
			break
		}
	}
	return out
}

// matchFilter evaluates the filter grammar the repositories use: terms of
// the form begins_with(#a, :p) or #a = :p, optionally NOT-prefixed, joined
// by AND.
func matchFilter(item dynamo.Item, expr *string, names map[string]string, values dynamo.Item) bool {
	if expr == nil {
		return true
	}
	for _, term := range strings.Split(*expr, " AND ") {
		if !matchTerm(item, strings.TrimSpace(term), names, values) {
			return false
		}
	}
	return true
}

func matchTerm(item dynamo.Item, term string, names map[string]string, values dynamo.Item) bool {
	negate := false
	if rest, ok := strings.CutPrefix(term, "NOT "); ok {
		negate = true
		term = rest
	}

	strVal := func(item dynamo.Item, attr string) (string, bool) {
		s, ok := item[attr].(*types.AttributeValueMemberS)
		if !ok {
			return "", false
		}
		return s.Value, true
	}
	placeholder := func(name string) string {
		s, _ := values[name].(*types.AttributeValueMemberS)
		if s == nil {
			return ""
		}
		return s.Value
	}

	var matched bool
	switch {
	case strings.HasPrefix(term, "begins_with("):
		args := strings.TrimSuffix(strings.TrimPrefix(term, "begins_with("), ")")
		parts := strings.SplitN(args, ",", 2)
		val, ok := strVal(item, names[strings.TrimSpace(parts[0])])
		matched = ok && strings.HasPrefix(val, placeholder(strings.TrimSpace(parts[1])))
	case strings.Contains(term, " = "):
		parts := strings.SplitN(term, " = ", 2)
		val, ok := strVal(item, names[strings.TrimSpace(parts[0])])
		matched = ok && val == placeholder(strings.TrimSpace(parts[1]))
	}

	if negate {
		return !matched
	}
	return matched
}

// objectStore is an in-memory bucket implementing the upload API.
type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newObjectStore() *objectStore {
	return &objectStore{objects: make(map[string][]byte)}
}

func (o *objectStore) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (o *objectStore) object(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	return data, ok
}

// presigner fabricates stable URLs without real request signing.
type presigner struct{}

func (presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{
		URL:    "https://s3.test/" + aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key) + "?verb=get",
		Method: http.MethodGet,
	}, nil
}

func (presigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{
		URL:    "https://s3.test/" + aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key) + "?verb=put",
		Method: http.MethodPut,
	}, nil
}

// secretVault serves a fixed signing key.
type secretVault struct{}

func (secretVault) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("integration-signing-key")}, nil
}

// testEnv is one fully wired server with direct access to the backing fakes.
type testEnv struct {
	server  *httptest.Server
	table   *memoryTable
	objects *objectStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	table := newMemoryTable()
	objects := newObjectStore()

	store := dynamo.NewStore(table, "insurance-claims")
	documents := s3store.New(objects, presigner{}, "insurance-claim-documents")
	tokens := auth.NewTokenService(secrets.NewProvider(secretVault{}, "jwt_secret"))
	guard := auth.NewGuard(tokens)

	identitySvc := identity.NewService(identity.NewRepo(store), tokens, adminEmail, adminPassword)
	claimSvc := claims.NewService(claims.NewRepo(store), documents, zerolog.Nop())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())

	apiV1 := e.Group("/api/v1")
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1, guard)
	claims.NewHandler(claimSvc).RegisterRoutes(apiV1, guard)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, table: table, objects: objects}
}

// do issues one request. A []byte body goes out raw as application/pdf;
// anything else non-nil is marshaled as JSON.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/pdf"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
		contentType = echo.MIMEApplicationJSON
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: response is not JSON: %s", method, path, raw)
		}
	}
	return res.StatusCode, decoded
}

// str pulls a string field out of a decoded response, failing loudly when it
// is missing.
func str(t *testing.T, body map[string]any, name string) string {
	t.Helper()
	v, ok := body[name].(string)
	if !ok {
		t.Fatalf("response field %q missing or not a string in %v", name, body)
	}
	return v
}

func count(t *testing.T, body map[string]any) int {
	t.Helper()
	v, ok := body["count"].(float64)
	if !ok {
		t.Fatalf("response has no count field: %v", body)
	}
	return int(v)
}

// registerAndLogin creates a patient account and returns its bearer token
// together with the assigned identifiers.
func (env *testEnv) registerAndLogin(t *testing.T, email, password string) (token, userID, patientID string) {
	t.Helper()

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    email,
		"password": password,
		"name":     "Integration Patient",
		"role":     "patient",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d (%v)", email, status, body)
	}
	userID = str(t, body, "user_id")
	patientID = str(t, body, "patient_id")

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d (%v)", email, status, body)
	}
	return str(t, body, "access_token"), userID, patientID
}

// adminLogin signs in as the configured admin, relying on the empty-table
// bootstrap when no admin row exists yet.
func (env *testEnv) adminLogin(t *testing.T) string {
	t.Helper()

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    adminEmail,
		"password": adminPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("admin login: status %d (%v)", status, body)
	}
	if got := str(t, body, "role"); got != auth.RoleAdmin {
		t.Fatalf("admin login role = %q", got)
	}
	return str(t, body, "access_token")
}
