package enroll

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
)

// StudentRecord is a pre-provisioned roster entry. Accounts can only be
// self-registered against a roster row whose numbers match exactly.
type StudentRecord struct {
	ID                 string      `json:"id"`
	RegistrationNumber string      `json:"registration_number"`
	StudentNumber      string      `json:"student_number"`
	FullName           string      `json:"full_name"`
	Email              null.String `json:"email,omitempty"`
	IsRegistered       bool        `json:"is_registered"`
	CreatedAt          time.Time   `json:"created_at"` // UTC
}

// OTPVerification is a single issued verification code. Rows are never
// deleted; consumed or expired codes stay behind as an audit trail.
type OTPVerification struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Code            string    `json:"code"` // 4-digit numeric string
	StudentRecordID string    `json:"student_record_id"`
	ExpiresAt       time.Time `json:"expires_at"` // UTC
	Verified        bool      `json:"verified"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// Usable reports whether the code can still be consumed at `now`.
func (o OTPVerification) Usable(now time.Time) bool {
	return !o.Verified && !o.ExpiresAt.Before(now)
}

// NewAccount is what the enrollment flow hands to the identity collaborator.
type NewAccount struct {
	Email              string
	Password           string
	FullName           string
	RegistrationNumber string
	StudentNumber      string
}

// Session is an authenticated identity as returned by the identity collaborator.
type Session struct {
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Request payloads

type ValidateStudentRequest struct {
	RegistrationNumber string `json:"registration_number" validate:"required,studentno"`
	StudentNumber      string `json:"student_number" validate:"required,studentno"`
}

func (r *ValidateStudentRequest) Validate(validate *validator.Validate) error {
	r.RegistrationNumber = core.CleanString(r.RegistrationNumber)
	r.StudentNumber = core.CleanString(r.StudentNumber)
	return validate.Struct(r)
}

type OTPRequest struct {
	Email              string `json:"email" validate:"required,email"`
	RegistrationNumber string `json:"registration_number" validate:"required,studentno"`
	StudentNumber      string `json:"student_number" validate:"required,studentno"`
}

func (r *OTPRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.RegistrationNumber = core.CleanString(r.RegistrationNumber)
	r.StudentNumber = core.CleanString(r.StudentNumber)
	return validate.Struct(r)
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=4,numeric"`
}

func (r *VerifyOTPRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.Code = core.CleanString(r.Code)
	return validate.Struct(r)
}

// Registration completes a verified signup.
type Registration struct {
	Email              string `json:"email" validate:"required,email"`
	Password           string `json:"password" validate:"required"`
	PasswordConfirm    string `json:"password_confirm" validate:"required,eqfield=Password"`
	FullName           string `json:"full_name" validate:"required"`
	RegistrationNumber string `json:"registration_number" validate:"omitempty,studentno"`
	StudentNumber      string `json:"student_number" validate:"omitempty,studentno"`
}

func (r *Registration) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.FullName = core.CleanString(r.FullName)
	r.RegistrationNumber = core.CleanString(r.RegistrationNumber)
	r.StudentNumber = core.CleanString(r.StudentNumber)
	return validate.Struct(r)
}

type IdentifierLogin struct {
	Identifier string `json:"identifier" validate:"required,studentno"`
	Password   string `json:"password" validate:"required"`
}

func (r *IdentifierLogin) Validate(validate *validator.Validate) error {
	r.Identifier = core.CleanString(r.Identifier)
	return validate.Struct(r)
}
