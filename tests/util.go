package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
)

// NewConfig returns a config suitable for tests; nothing external is hit.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:                     false,
		TestMode:                  true,
		Env:                       "test",
		AppName:                   "Chuo",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Chuo", Address: "noreply@chuo.test"},
		OTPTimeoutDelta:           10 * time.Minute,
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

// Logger is a no-op core.Logger that records errors for assertions.
type Logger struct {
	ErrorMessages []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) Debug(msg string, args ...interface{}) {}
func (l *Logger) Info(msg string, args ...interface{})  {}
func (l *Logger) Warn(msg string, args ...interface{})  {}
func (l *Logger) Error(msg string, args ...interface{}) {
	l.ErrorMessages = append(l.ErrorMessages, msg)
}
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.ErrorMessages = append(l.ErrorMessages, msg)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateQuiz(
	t *testing.T,
	repo quiz.Repository,
	title, courseID, ownerID, status string,
	start time.Time,
	end null.Time,
) quiz.Quiz {
	t.Helper()

	now := time.Now().UTC()
	q := quiz.Quiz{
		Title:     title,
		CourseID:  courseID,
		OwnerID:   ownerID,
		Status:    status,
		StartDate: start.UTC(),
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q, err := repo.CreateQuiz(context.Background(), q)
	if err != nil {
		t.Fatalf("CreateQuiz() failed: %v", err)
	}
	return q
}

// StudentRecordCreator matches the roster stores that can insert records.
type StudentRecordCreator interface {
	CreateStudentRecord(ctx context.Context, rec enroll.StudentRecord) (enroll.StudentRecord, error)
}

func CreateStudentRecord(
	t *testing.T,
	repo StudentRecordCreator,
	regNo, studentNo, fullName, email string,
) enroll.StudentRecord {
	t.Helper()

	rec := enroll.StudentRecord{
		RegistrationNumber: regNo,
		StudentNumber:      studentNo,
		FullName:           fullName,
		CreatedAt:          time.Now().UTC(),
	}
	if email != "" {
		rec.Email = null.StringFrom(email)
	}
	rec, err := repo.CreateStudentRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateStudentRecord() failed: %v", err)
	}
	return rec
}
