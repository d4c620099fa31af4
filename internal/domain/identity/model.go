package identity

import (
	"github.com/google/uuid"

	"github.com/claims/claims/internal/platform/dynamo"
)

// PatientIDPrefix starts every generated patient identifier.
const PatientIDPrefix = "PAT-"

// User is one account row in the shared table. Key repeats the user ID with
// the USER# prefix because both entity kinds live under the same partition
// key attribute.
type User struct {
	Key          string  `json:"-" dynamodbav:"claim_id"`
	UserID       string  `json:"user_id" dynamodbav:"user_id"`
	Email        string  `json:"email" dynamodbav:"email"`
	PasswordHash string  `json:"-" dynamodbav:"password_hash"`
	Role         string  `json:"role" dynamodbav:"role"`
	Name         string  `json:"name" dynamodbav:"name"`
	PatientID    *string `json:"patient_id,omitempty" dynamodbav:"patient_id,omitempty"`
	CreatedAt    int64   `json:"created_at" dynamodbav:"created_at"`
}

// UserKey builds the table key for a user ID.
func UserKey(userID string) string {
	return dynamo.UserKeyPrefix + userID
}

// NewPatientID generates a patient identifier of the form PAT-xxxxxxxx,
// where x is lowercase hex.
func NewPatientID() string {
	return PatientIDPrefix + uuid.NewString()[:8]
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type LoginInput struct {
	Email     string `json:"email"`
	PatientID string `json:"patient_id"`
	Password  string `json:"password"`
}

// LoginResult is the token response. PatientID rides along for patient
// accounts so clients can show the caller's own identifier.
type LoginResult struct {
	Token     string  `json:"access_token"`
	TokenType string  `json:"token_type"`
	UserID    string  `json:"user_id"`
	Role      string  `json:"role"`
	PatientID *string `json:"patient_id,omitempty"`
}
