package enroll_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/user"
	emailsvc "github.com/jkinyua/chuo/services/email"
	dummydb "github.com/jkinyua/chuo/storage/database/dummy"
	testutil "github.com/jkinyua/chuo/tests"
)

type fixture struct {
	svc        enroll.ServiceInterface
	usrSvc     user.ServiceInterface
	repo       enroll.Repository
	rosterRepo testutil.StudentRecordCreator
	logger     *testutil.Logger
}

func setup(t *testing.T) fixture {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	enrollRepo := dummydb.NewEnrollRepository(db)
	usrRepo := dummydb.NewUserRepository(db)

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	gateway := user.NewEnrollmentGateway(usrSvc)

	return fixture{
		svc:        enroll.NewServiceMock(enrollRepo, gateway, gateway, mailSvc, logger, conf),
		usrSvc:     usrSvc,
		repo:       enrollRepo,
		rosterRepo: enrollRepo,
		logger:     logger,
	}
}

func TestService_ValidateStudent(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	rec := testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")
	registered := testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/002", "S654321", "Juma Otieno", "")
	if err := fix.repo.SetStudentRegistered(ctx, registered.ID); err != nil {
		t.Fatalf("SetStudentRegistered() failed: %v", err)
	}

	tests := []struct {
		name      string
		regNo     string
		studentNo string
		wantErr   error
	}{
		{name: "both numbers match", regNo: "REG/2026/001", studentNo: "S123456"},
		{name: "numbers are trimmed", regNo: "  REG/2026/001 ", studentNo: " S123456 "},
		{name: "registration number only", regNo: "REG/2026/001", studentNo: "S000000", wantErr: enroll.ErrNotFound},
		{name: "student number only", regNo: "REG/2026/999", studentNo: "S123456", wantErr: enroll.ErrNotFound},
		{name: "numbers from different rows", regNo: "REG/2026/002", studentNo: "S123456", wantErr: enroll.ErrNotFound},
		{name: "unknown student", regNo: "REG/2026/999", studentNo: "S999999", wantErr: enroll.ErrNotFound},
		{name: "already registered", regNo: "REG/2026/002", studentNo: "S654321", wantErr: enroll.ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fix.svc.ValidateStudent(context.Background(), tt.regNo, tt.studentNo)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("ValidateStudent() error = %v; wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateStudent() failed: %v", err)
			}
			if got.ID != rec.ID {
				t.Errorf("ValidateStudent() = %v; want record %s", got, rec.ID)
			}
		})
	}
}

func TestService_RequestOTP(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	rec := testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")

	code, err := fix.svc.RequestOTP(ctx, "Asha@Test.CD", rec.ID)
	if err != nil {
		t.Fatalf("RequestOTP() failed: %v", err)
	}
	if len(code) != 4 || strings.Trim(code, "0123456789") != "" {
		t.Fatalf("RequestOTP() = %q; want a 4-digit code", code)
	}

	// the code was persisted against the lowercased email
	otp, err := fix.repo.GetLatestPendingOTP(ctx, "asha@test.cd", code, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetLatestPendingOTP() failed: %v", err)
	}
	if otp.StudentRecordID != rec.ID {
		t.Errorf("otp.StudentRecordID = %s; want %s", otp.StudentRecordID, rec.ID)
	}

	// the code was mailed out
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if msg.To[0].Address != "asha@test.cd" {
		t.Errorf("mail to = %s; want asha@test.cd", msg.To[0].Address)
	}
	if !strings.Contains(msg.TextContent, code) {
		t.Errorf("mail body does not contain the code %q:\n%s", code, msg.TextContent)
	}
}

func TestService_VerifyOTP(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	rec := testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")
	code, err := fix.svc.RequestOTP(ctx, "asha@test.cd", rec.ID)
	if err != nil {
		t.Fatalf("RequestOTP() failed: %v", err)
	}

	if err = fix.svc.VerifyOTP(ctx, "ASHA@test.cd", code); err != nil {
		t.Fatalf("VerifyOTP() failed: %v", err)
	}

	// a consumed code cannot be replayed
	if err = fix.svc.VerifyOTP(ctx, "asha@test.cd", code); errors.Cause(err) != enroll.ErrOTPInvalidOrExpired {
		t.Errorf("VerifyOTP() replay error = %v; want %v", err, enroll.ErrOTPInvalidOrExpired)
	}

	// wrong code
	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}
	if err = fix.svc.VerifyOTP(ctx, "asha@test.cd", wrong); errors.Cause(err) != enroll.ErrOTPInvalidOrExpired {
		t.Errorf("VerifyOTP() wrong code error = %v; want %v", err, enroll.ErrOTPInvalidOrExpired)
	}

	// expired code
	now := time.Now().UTC()
	if _, err = fix.repo.CreateOTPVerification(ctx, enroll.OTPVerification{
		Email:           "asha@test.cd",
		Code:            "4321",
		StudentRecordID: rec.ID,
		ExpiresAt:       now.Add(-time.Minute),
		CreatedAt:       now.Add(-11 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateOTPVerification() failed: %v", err)
	}
	if err = fix.svc.VerifyOTP(ctx, "asha@test.cd", "4321"); errors.Cause(err) != enroll.ErrOTPInvalidOrExpired {
		t.Errorf("VerifyOTP() expired code error = %v; want %v", err, enroll.ErrOTPInvalidOrExpired)
	}
}

func TestService_VerifyOTP_newestPendingWins(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	older := enroll.OTPVerification{
		Email:     "asha@test.cd",
		Code:      "7777",
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now.Add(-5 * time.Minute),
	}
	newer := older
	newer.CreatedAt = now.Add(-time.Minute)

	var err error
	if older, err = fix.repo.CreateOTPVerification(ctx, older); err != nil {
		t.Fatalf("CreateOTPVerification() failed: %v", err)
	}
	if newer, err = fix.repo.CreateOTPVerification(ctx, newer); err != nil {
		t.Fatalf("CreateOTPVerification() failed: %v", err)
	}

	if err = fix.svc.VerifyOTP(ctx, "asha@test.cd", "7777"); err != nil {
		t.Fatalf("VerifyOTP() failed: %v", err)
	}

	// the newest row was consumed; the older duplicate is still pending
	left, err := fix.repo.GetLatestPendingOTP(ctx, "asha@test.cd", "7777", now)
	if err != nil {
		t.Fatalf("GetLatestPendingOTP() failed: %v", err)
	}
	if left.ID != older.ID {
		t.Errorf("pending otp after verify = %s; want the older row %s", left.ID, older.ID)
	}
}

func TestService_CompleteRegistration(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	rec := testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")

	err := fix.svc.CompleteRegistration(ctx, enroll.Registration{
		Email:              "asha@test.cd",
		Password:           "s3cr3t-pwd",
		PasswordConfirm:    "s3cr3t-pwd",
		FullName:           "Asha Mwangi",
		RegistrationNumber: "REG/2026/001",
		StudentNumber:      "S123456",
	})
	if err != nil {
		t.Fatalf("CompleteRegistration() failed: %v", err)
	}

	// the account exists and can check its password
	usr, err := fix.usrSvc.GetByEmail(ctx, "asha@test.cd")
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if !usr.IsStudent() {
		t.Errorf("new account roles = %v; want a student", usr.Roles)
	}
	if err = usr.CheckPassword("s3cr3t-pwd"); err != nil {
		t.Error("new account password does not match")
	}
	if usr.StudentNumber.String != "S123456" || usr.RegistrationNumber.String != "REG/2026/001" {
		t.Errorf("new account numbers = %s / %s", usr.StudentNumber.String, usr.RegistrationNumber.String)
	}

	// the roster row was flagged
	if _, err = fix.svc.ValidateStudent(ctx, rec.RegistrationNumber, rec.StudentNumber); errors.Cause(err) != enroll.ErrAlreadyRegistered {
		t.Errorf("ValidateStudent() after registration error = %v; want %v", err, enroll.ErrAlreadyRegistered)
	}

	// a second registration with the same email is rejected
	err = fix.svc.CompleteRegistration(ctx, enroll.Registration{
		Email:           "asha@test.cd",
		Password:        "another-pwd",
		PasswordConfirm: "another-pwd",
		FullName:        "Someone Else",
	})
	if err == nil {
		t.Error("CompleteRegistration() with a taken email did not fail")
	}
}

func TestService_CompleteRegistration_rosterFlagIsBestEffort(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	// the numbers match no roster row; the account is still created
	err := fix.svc.CompleteRegistration(ctx, enroll.Registration{
		Email:              "juma@test.cd",
		Password:           "s3cr3t-pwd",
		PasswordConfirm:    "s3cr3t-pwd",
		FullName:           "Juma Otieno",
		RegistrationNumber: "REG/2026/404",
		StudentNumber:      "S404404",
	})
	if err != nil {
		t.Fatalf("CompleteRegistration() failed: %v", err)
	}
	if _, err = fix.usrSvc.GetByEmail(ctx, "juma@test.cd"); err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if len(fix.logger.ErrorMessages) == 0 {
		t.Error("expected the roster flag failure to be logged")
	}
}

func TestService_SignInWithIdentifier(t *testing.T) {
	fix := setup(t)
	ctx := context.Background()

	// roster row carrying an email
	testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/001", "S123456", "Asha Mwangi", "asha@test.cd")
	// roster row without email; the profile holds the identifier
	testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/002", "S654321", "Juma Otieno", "")
	// roster row with no email anywhere
	testutil.CreateStudentRecord(t, fix.rosterRepo, "REG/2026/003", "S111111", "Neema Hassan", "")

	if err := fix.svc.CompleteRegistration(ctx, enroll.Registration{
		Email:              "asha@test.cd",
		Password:           "asha-pwd",
		PasswordConfirm:    "asha-pwd",
		FullName:           "Asha Mwangi",
		RegistrationNumber: "REG/2026/001",
		StudentNumber:      "S123456",
	}); err != nil {
		t.Fatalf("CompleteRegistration() failed: %v", err)
	}
	if err := fix.svc.CompleteRegistration(ctx, enroll.Registration{
		Email:              "juma@test.cd",
		Password:           "juma-pwd",
		PasswordConfirm:    "juma-pwd",
		FullName:           "Juma Otieno",
		RegistrationNumber: "REG/2026/002",
		StudentNumber:      "S654321",
	}); err != nil {
		t.Fatalf("CompleteRegistration() failed: %v", err)
	}

	tests := []struct {
		name       string
		identifier string
		password   string
		wantEmail  string
		wantErr    error
	}{
		{name: "by registration number", identifier: "REG/2026/001", password: "asha-pwd", wantEmail: "asha@test.cd"},
		{name: "by student number", identifier: "S123456", password: "asha-pwd", wantEmail: "asha@test.cd"},
		{name: "profile directory fallback", identifier: "S654321", password: "juma-pwd", wantEmail: "juma@test.cd"},
		{name: "wrong password", identifier: "S123456", password: "lol", wantErr: user.ErrInvalidCredentials},
		{name: "unknown identifier", identifier: "S999999", password: "lol", wantErr: enroll.ErrNotFound},
		{name: "no email associated", identifier: "S111111", password: "lol", wantErr: enroll.ErrNoEmailAssociated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := fix.svc.SignInWithIdentifier(context.Background(), tt.identifier, tt.password)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("SignInWithIdentifier() error = %v; wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignInWithIdentifier() failed: %v", err)
			}
			if sess.Email != tt.wantEmail {
				t.Errorf("session email = %s; want %s", sess.Email, tt.wantEmail)
			}
			if sess.UserID == "" {
				t.Error("session has no user ID")
			}
		})
	}
}
