package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jkinyua/chuo/core/enroll"
)

type enrollRepository struct {
	db *enrollTables
}

var _ enroll.Repository = (*enrollRepository)(nil) // interface compliance check

func NewEnrollRepository(db *DB) *enrollRepository {
	return &enrollRepository{db: db.enroll}
}

func (repo *enrollRepository) GetStudentRecord(ctx context.Context, regNo, studentNo string) (enroll.StudentRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.records {
		if rec.RegistrationNumber == regNo && rec.StudentNumber == studentNo {
			return *rec, nil
		}
	}
	return enroll.StudentRecord{}, enroll.ErrNotFound
}

func (repo *enrollRepository) GetStudentRecordByIdentifier(ctx context.Context, identifier string) (enroll.StudentRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.records {
		if rec.RegistrationNumber == identifier || rec.StudentNumber == identifier {
			return *rec, nil
		}
	}
	return enroll.StudentRecord{}, enroll.ErrNotFound
}

func (repo *enrollRepository) CreateStudentRecord(ctx context.Context, rec enroll.StudentRecord) (enroll.StudentRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// each number is unique on its own, like the table constraints
	for _, existing := range repo.db.records {
		if existing.RegistrationNumber == rec.RegistrationNumber || existing.StudentNumber == rec.StudentNumber {
			return enroll.StudentRecord{}, enroll.ErrNumberTaken
		}
	}

	rec.ID = uuid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	repo.db.records[rec.ID] = &rec
	return rec, nil
}

func (repo *enrollRepository) SetStudentRegistered(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.records[id]
	if !ok {
		return enroll.ErrNotFound
	}
	rec.IsRegistered = true
	return nil
}

func (repo *enrollRepository) CreateOTPVerification(ctx context.Context, otp enroll.OTPVerification) (enroll.OTPVerification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	otp.ID = uuid.New().String()
	repo.db.otps[otp.ID] = &otp
	return otp, nil
}

func (repo *enrollRepository) GetLatestPendingOTP(ctx context.Context, email, code string, now time.Time) (enroll.OTPVerification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *enroll.OTPVerification
	for _, otp := range repo.db.otps {
		if otp.Email != email || otp.Code != code || !otp.Usable(now) {
			continue
		}
		if latest == nil || otp.CreatedAt.After(latest.CreatedAt) {
			latest = otp
		}
	}
	if latest == nil {
		return enroll.OTPVerification{}, enroll.ErrNotFound
	}
	return *latest, nil
}

func (repo *enrollRepository) MarkOTPVerified(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	otp, ok := repo.db.otps[id]
	if !ok {
		return enroll.ErrNotFound
	}
	otp.Verified = true
	return nil
}
