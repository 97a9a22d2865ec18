package quiz

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
)

// Statuses
const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusClosed = "closed" // terminal
)

var Statuses = []string{StatusDraft, StatusActive, StatusClosed}

type Quiz struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	CourseID       string    `json:"course_id"`
	OwnerID        string    `json:"owner_id"` // lecturer's profile ID
	Status         string    `json:"status"`
	StartDate      time.Time `json:"start_date"` // UTC
	EndDate        null.Time `json:"end_date"`   // open-ended when null
	TimeLimitMins  int       `json:"time_limit_mins"`
	PassingScore   int       `json:"passing_score"`
	TotalQuestions int       `json:"total_questions"`
	TotalPoints    int       `json:"total_points"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// Visible reports whether the quiz is live for students at `now`:
// active, started, and not past its end date. A quiz with no end date
// stays visible for as long as it is active.
func (q Quiz) Visible(now time.Time) bool {
	if q.Status != StatusActive {
		return false
	}
	if q.StartDate.After(now) {
		return false
	}
	if q.EndDate.Valid && q.EndDate.Time.Before(now) {
		return false
	}
	return true
}

// Expired reports whether the quiz's end date has passed at `now`.
// A quiz with no end date never expires.
func (q Quiz) Expired(now time.Time) bool {
	return q.EndDate.Valid && q.EndDate.Time.Before(now)
}

// NewQuiz contains information needed to create a new Quiz.
// Lecturers may create straight to active; closed is not a valid initial status.
type NewQuiz struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description"`
	CourseID       string    `json:"course_id" validate:"required"`
	Status         string    `json:"status" validate:"omitempty,oneof=draft active"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        null.Time `json:"end_date"`
	TimeLimitMins  int       `json:"time_limit_mins" validate:"omitempty,min=1"`
	PassingScore   int       `json:"passing_score" validate:"omitempty,min=0,max=100"`
	TotalQuestions int       `json:"total_questions" validate:"omitempty,min=0"`
	TotalPoints    int       `json:"total_points" validate:"omitempty,min=0"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Description = core.CleanString(nq.Description)

	if err := validate.Struct(nq); err != nil {
		return err
	}
	return validateWindow(nq.StartDate, nq.EndDate)
}

// UpdateQuiz defines what information may be provided to modify an existing Quiz.
type UpdateQuiz struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status" validate:"omitempty,oneof=draft active closed"`
	StartDate      time.Time `json:"start_date"`
	EndDate        null.Time `json:"end_date"`
	TimeLimitMins  int       `json:"time_limit_mins" validate:"omitempty,min=1"`
	PassingScore   int       `json:"passing_score" validate:"omitempty,min=0,max=100"`
	TotalQuestions int       `json:"total_questions" validate:"omitempty,min=0"`
	TotalPoints    int       `json:"total_points" validate:"omitempty,min=0"`
}

func (uq *UpdateQuiz) Validate(origQuiz Quiz, validate *validator.Validate) error {
	if title := core.CleanString(uq.Title); title != "" {
		uq.Title = title
	} else {
		uq.Title = origQuiz.Title
	}
	uq.Description = core.CleanString(uq.Description)

	if uq.Status == "" {
		uq.Status = origQuiz.Status
	}
	if uq.StartDate.IsZero() {
		uq.StartDate = origQuiz.StartDate
	}
	if !uq.EndDate.Valid {
		uq.EndDate = origQuiz.EndDate
	}

	if err := validate.Struct(uq); err != nil {
		return err
	}
	return validateWindow(uq.StartDate, uq.EndDate)
}

func validateWindow(start time.Time, end null.Time) error {
	if end.Valid && end.Time.Before(start) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "end_date",
			Error: "end date must not be before start date",
		})
	}
	return nil
}

// QueryFilter applies AND on its set fields.
type QueryFilter struct {
	Status   string `query:"status"`
	CourseID string `query:"course_id"`
	OwnerID  string `query:"owner_id"`

	// WithEndDateOnly restricts to quizzes with a non-null end date;
	// the auto-close sweep uses it to skip open-ended quizzes.
	WithEndDateOnly bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Status == "" && qf.CourseID == "" && qf.OwnerID == "" && !qf.WithEndDateOnly
}
