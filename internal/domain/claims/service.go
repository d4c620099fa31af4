package claims

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claims/claims/internal/platform/auth"
	"github.com/claims/claims/internal/platform/dynamo"
	"github.com/claims/claims/internal/platform/s3store"
)

// Link TTLs are part of the document handoff contract, not configuration:
// an hour to push a document up, fifteen minutes to pull one down.
const (
	uploadLinkTTL   = time.Hour
	downloadLinkTTL = 15 * time.Minute

	documentContentType = "application/pdf"
)

// ObjectStore is the slice of the document store the service calls.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignedPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

var _ ObjectStore = (*s3store.Store)(nil)

type Service struct {
	repo    Repository
	objects ObjectStore
	logger  zerolog.Logger
}

func NewService(repo Repository, objects ObjectStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, objects: objects, logger: logger}
}

// canTouch is the ownership predicate: the claim's owner or any admin.
func canTouch(caller *auth.Claims, cl *Claim) bool {
	return cl.UserID == caller.UserID() || caller.IsAdmin()
}

// Create files a new claim for the caller. The claim is always born PENDING
// regardless of the payload. After the record is stored, a presigned upload
// link is attached best-effort; a failed link leaves the claim intact.
func (s *Service) Create(ctx context.Context, caller *auth.Claims, in CreateInput) (*Claim, error) {
	if in.Amount.String() == "" {
		return nil, fmt.Errorf("amount is required")
	}

	cl := &Claim{
		ClaimID:      uuid.NewString(),
		UserID:       caller.UserID(),
		Amount:       in.Amount.String(),
		Description:  in.Description,
		PolicyNumber: in.PolicyNumber,
		Status:       StatusPending,
		CreatedAt:    now(),
	}
	if caller.PatientID != nil {
		cl.PatientID = *caller.PatientID
	}

	if err := s.repo.Put(ctx, cl); err != nil {
		return nil, err
	}

	url, err := s.objects.PresignedPut(ctx, s3store.DocumentKey(cl.ClaimID), documentContentType, uploadLinkTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("claim_id", cl.ClaimID).Msg("upload link generation failed")
		return cl, nil
	}
	cl.UploadURL = url
	return cl, nil
}

// ListMine returns the caller's claims, each enriched with a download link
// where a document exists.
func (s *Service) ListMine(ctx context.Context, caller *auth.Claims, page dynamo.Page) ([]*Claim, string, error) {
	result, next, err := s.repo.ListByUser(ctx, caller.UserID(), page)
	if err != nil {
		return nil, "", err
	}
	s.attachDownloadLinks(ctx, result)
	return result, next, nil
}

// UploadDocument streams a document straight through the server to the
// canonical key for the claim. The storage write must succeed before the
// record is touched.
func (s *Service) UploadDocument(ctx context.Context, caller *auth.Claims, claimID, contentType string, body io.Reader) (*Claim, error) {
	cl, err := s.repo.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !canTouch(caller, cl) {
		return nil, auth.ErrForbidden
	}

	key := s3store.DocumentKey(claimID)
	if contentType == "" {
		contentType = documentContentType
	}
	if err := s.objects.Upload(ctx, key, contentType, body); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateFields(ctx, claimID, map[string]string{
		"document_key":         key,
		"document_uploaded_at": now(),
	})
	if err != nil {
		return nil, err
	}
	s.attachDownloadLink(ctx, updated)
	return updated, nil
}

// ConfirmDocument stamps the claim after a client-side upload through the
// presigned link. Re-confirming is allowed; the last write wins.
func (s *Service) ConfirmDocument(ctx context.Context, caller *auth.Claims, claimID, documentKey string) (*Claim, error) {
	cl, err := s.repo.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !canTouch(caller, cl) {
		return nil, auth.ErrForbidden
	}

	key := documentKey
	if key == "" {
		key = s3store.DocumentKey(claimID)
	}

	updated, err := s.repo.UpdateFields(ctx, claimID, map[string]string{
		"document_key":          key,
		"document_confirmed_at": now(),
	})
	if err != nil {
		return nil, err
	}
	s.attachDownloadLink(ctx, updated)
	return updated, nil
}

// UpdateStatus overwrites the claim's status. The transport layer restricts
// this to admins; beyond set membership no transition check is made, so a
// decided claim can be re-decided.
func (s *Service) UpdateStatus(ctx context.Context, claimID, status string) (*Claim, error) {
	if !ValidStatus(status) {
		return nil, ErrBadStatus
	}
	return s.repo.UpdateFields(ctx, claimID, map[string]string{"claim_status": status})
}

func (s *Service) Approve(ctx context.Context, claimID string) (*Claim, error) {
	return s.UpdateStatus(ctx, claimID, StatusApproved)
}

func (s *Service) Reject(ctx context.Context, claimID string) (*Claim, error) {
	return s.UpdateStatus(ctx, claimID, StatusRejected)
}

func (s *Service) ListAll(ctx context.Context, page dynamo.Page) ([]*Claim, string, error) {
	result, next, err := s.repo.ListAll(ctx, page)
	if err != nil {
		return nil, "", err
	}
	s.attachDownloadLinks(ctx, result)
	return result, next, nil
}

func (s *Service) ListByStatus(ctx context.Context, status string, page dynamo.Page) ([]*Claim, string, error) {
	if !ValidStatus(status) {
		return nil, "", ErrBadStatus
	}
	result, next, err := s.repo.ListByStatus(ctx, status, page)
	if err != nil {
		return nil, "", err
	}
	s.attachDownloadLinks(ctx, result)
	return result, next, nil
}

func (s *Service) ListPending(ctx context.Context, page dynamo.Page) ([]*Claim, string, error) {
	return s.ListByStatus(ctx, StatusPending, page)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, page dynamo.Page) ([]*Claim, string, error) {
	result, next, err := s.repo.ListByPatient(ctx, patientID, page)
	if err != nil {
		return nil, "", err
	}
	s.attachDownloadLinks(ctx, result)
	return result, next, nil
}

func (s *Service) attachDownloadLinks(ctx context.Context, list []*Claim) {
	for _, cl := range list {
		s.attachDownloadLink(ctx, cl)
	}
}

// attachDownloadLink mints a GET link for a claim holding a document. A
// failed link is logged and skipped; the claim still goes out.
func (s *Service) attachDownloadLink(ctx context.Context, cl *Claim) {
	if cl.DocumentKey == "" {
		return
	}
	url, err := s.objects.PresignedGet(ctx, cl.DocumentKey, downloadLinkTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("claim_id", cl.ClaimID).Msg("download link generation failed")
		return
	}
	cl.DownloadURL = url
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
