package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core/enroll"
)

type studentRecordRow struct {
	ID                 string      `db:"id"`
	RegistrationNumber string      `db:"registration_number"`
	StudentNumber      string      `db:"student_number"`
	FullName           string      `db:"full_name"`
	Email              null.String `db:"email"`
	IsRegistered       bool        `db:"is_registered"`
	CreatedAt          time.Time   `db:"created_at"`
}

type otpRow struct {
	ID              string    `db:"id"`
	Email           string    `db:"email"`
	Code            string    `db:"code"`
	StudentRecordID string    `db:"student_record_id"`
	ExpiresAt       time.Time `db:"expires_at"`
	Verified        bool      `db:"verified"`
	CreatedAt       time.Time `db:"created_at"`
}

const (
	studentRecordColumns = `id, registration_number, student_number, full_name, email, is_registered, created_at`
	otpColumns           = `id, email, code, student_record_id, expires_at, verified, created_at`
)

type enrollRepository struct {
	db *sqlx.DB
}

var _ enroll.Repository = (*enrollRepository)(nil) // interface compliance check

func NewEnrollRepository(db *sqlx.DB) *enrollRepository {
	return &enrollRepository{db: db}
}

func (repo enrollRepository) unpackRecord(row studentRecordRow) enroll.StudentRecord {
	return enroll.StudentRecord{
		ID:                 row.ID,
		RegistrationNumber: row.RegistrationNumber,
		StudentNumber:      row.StudentNumber,
		FullName:           row.FullName,
		Email:              row.Email,
		IsRegistered:       row.IsRegistered,
		CreatedAt:          row.CreatedAt,
	}
}

func (repo enrollRepository) unpackOTP(row otpRow) enroll.OTPVerification {
	return enroll.OTPVerification{
		ID:              row.ID,
		Email:           row.Email,
		Code:            row.Code,
		StudentRecordID: row.StudentRecordID,
		ExpiresAt:       row.ExpiresAt,
		Verified:        row.Verified,
		CreatedAt:       row.CreatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" err to enroll.ErrNotFound
func (repo enrollRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return enroll.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo enrollRepository) GetStudentRecord(ctx context.Context, regNo, studentNo string) (enroll.StudentRecord, error) {
	var row studentRecordRow
	q := `SELECT ` + studentRecordColumns + ` FROM student_record WHERE registration_number = ? AND student_number = ?`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), regNo, studentNo); err != nil {
		return enroll.StudentRecord{}, repo.trapNoRowsErr(err, "finding student record")
	}
	return repo.unpackRecord(row), nil
}

func (repo enrollRepository) GetStudentRecordByIdentifier(ctx context.Context, identifier string) (enroll.StudentRecord, error) {
	var row studentRecordRow
	q := `SELECT ` + studentRecordColumns + ` FROM student_record WHERE registration_number = ? OR student_number = ?`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), identifier, identifier); err != nil {
		return enroll.StudentRecord{}, repo.trapNoRowsErr(err, "finding student record by identifier")
	}
	return repo.unpackRecord(row), nil
}

func (repo enrollRepository) CreateStudentRecord(ctx context.Context, rec enroll.StudentRecord) (enroll.StudentRecord, error) {
	rec.ID = uuid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := studentRecordRow{
		ID:                 rec.ID,
		RegistrationNumber: rec.RegistrationNumber,
		StudentNumber:      rec.StudentNumber,
		FullName:           rec.FullName,
		Email:              rec.Email,
		IsRegistered:       rec.IsRegistered,
		CreatedAt:          rec.CreatedAt.UTC(),
	}
	q := `
INSERT INTO student_record (` + studentRecordColumns + `)
VALUES (:id, :registration_number, :student_number, :full_name, :email, :is_registered, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return enroll.StudentRecord{}, enroll.ErrNumberTaken
		}
		return enroll.StudentRecord{}, errors.Wrap(err, "inserting student record")
	}
	return rec, nil
}

func (repo enrollRepository) SetStudentRegistered(ctx context.Context, id string) error {
	q := `UPDATE student_record SET is_registered = TRUE WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), id)
	if err != nil {
		return errors.Wrap(err, "flagging student record")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return enroll.ErrNotFound
	}
	return nil
}

func (repo enrollRepository) CreateOTPVerification(ctx context.Context, otp enroll.OTPVerification) (enroll.OTPVerification, error) {
	otp.ID = uuid.New().String()
	row := otpRow{
		ID:              otp.ID,
		Email:           otp.Email,
		Code:            otp.Code,
		StudentRecordID: otp.StudentRecordID,
		ExpiresAt:       otp.ExpiresAt.UTC(),
		Verified:        otp.Verified,
		CreatedAt:       otp.CreatedAt.UTC(),
	}
	q := `
INSERT INTO otp_verification (` + otpColumns + `)
VALUES (:id, :email, :code, :student_record_id, :expires_at, :verified, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return enroll.OTPVerification{}, errors.Wrap(err, "inserting verification code")
	}
	return otp, nil
}

func (repo enrollRepository) GetLatestPendingOTP(ctx context.Context, email, code string, now time.Time) (enroll.OTPVerification, error) {
	var row otpRow
	q := `
SELECT ` + otpColumns + ` FROM otp_verification
WHERE email = ? AND code = ? AND verified = FALSE AND expires_at >= ?
ORDER BY created_at DESC
LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), email, code, now.UTC()); err != nil {
		return enroll.OTPVerification{}, repo.trapNoRowsErr(err, "finding verification code")
	}
	return repo.unpackOTP(row), nil
}

func (repo enrollRepository) MarkOTPVerified(ctx context.Context, id string) error {
	q := `UPDATE otp_verification SET verified = TRUE WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), id)
	if err != nil {
		return errors.Wrap(err, "marking code verified")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return enroll.ErrNotFound
	}
	return nil
}
