package claims

import (
	"encoding/json"
	"errors"
)

// Claim statuses. A claim is born PENDING and moves to APPROVED or REJECTED
// by admin decision.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// ErrBadStatus rejects a status outside the known set.
var ErrBadStatus = errors.New("claim status must be PENDING, APPROVED or REJECTED")

// ValidStatus reports whether s is a member of the status set.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Claim is one insurance claim record. The claim_id attribute is both the
// table's partition key and the claim's identity, and amount is kept in its
// text form to avoid floating-point drift.
type Claim struct {
	ClaimID      string `json:"claim_id" dynamodbav:"claim_id"`
	UserID       string `json:"user_id" dynamodbav:"user_id"`
	PatientID    string `json:"patient_id,omitempty" dynamodbav:"patient_id,omitempty"`
	Amount       string `json:"amount" dynamodbav:"amount"`
	Description  string `json:"description" dynamodbav:"description"`
	PolicyNumber string `json:"policy_number" dynamodbav:"policy_number"`
	Status       string `json:"claim_status" dynamodbav:"claim_status"`
	CreatedAt    string `json:"created_at" dynamodbav:"created_at"`

	DocumentKey         string `json:"document_key,omitempty" dynamodbav:"document_key,omitempty"`
	DocumentUploadedAt  string `json:"document_uploaded_at,omitempty" dynamodbav:"document_uploaded_at,omitempty"`
	DocumentConfirmedAt string `json:"document_confirmed_at,omitempty" dynamodbav:"document_confirmed_at,omitempty"`

	// Signed links are minted per response and never persisted.
	UploadURL   string `json:"upload_url,omitempty" dynamodbav:"-"`
	DownloadURL string `json:"download_url,omitempty" dynamodbav:"-"`
}

// CreateInput is the claim submission payload. Amount is a json.Number so
// clients may send the figure as a JSON number or as a quoted string.
type CreateInput struct {
	Amount       json.Number `json:"amount"`
	Description  string      `json:"description"`
	PolicyNumber string      `json:"policy_number"`
}

// UpdateStatusInput carries an admin status decision.
type UpdateStatusInput struct {
	Status string `json:"status"`
}

// ConfirmDocumentInput optionally names the uploaded object. When empty the
// canonical key for the claim is assumed.
type ConfirmDocumentInput struct {
	DocumentKey string `json:"document_key"`
}
