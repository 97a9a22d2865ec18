package enroll

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
)

var (
	// errors
	ErrNotFound            = errors.New("student record not found")
	ErrAlreadyRegistered   = errors.New("this student is already registered")
	ErrOTPInvalidOrExpired = errors.New("invalid or expired verification code")
	ErrNoEmailAssociated   = errors.New("no email address is associated with this student")
	ErrNumberTaken         = errors.New("a student record with this number already exists")
)

type (
	Repository interface {
		// GetStudentRecord matches both numbers jointly; a row matching only
		// one of them is not a match.
		GetStudentRecord(ctx context.Context, regNo, studentNo string) (StudentRecord, error)
		// GetStudentRecordByIdentifier matches either number.
		GetStudentRecordByIdentifier(ctx context.Context, identifier string) (StudentRecord, error)
		SetStudentRegistered(ctx context.Context, id string) error
		CreateOTPVerification(ctx context.Context, otp OTPVerification) (OTPVerification, error)
		// GetLatestPendingOTP returns the newest unverified, unexpired row
		// matching (email, code), ties broken by latest created_at.
		GetLatestPendingOTP(ctx context.Context, email, code string, now time.Time) (OTPVerification, error)
		MarkOTPVerified(ctx context.Context, id string) error
	}

	// Identity creates accounts and checks credentials. The portal's own
	// profile service implements it; a hosted provider would just be
	// another implementation.
	Identity interface {
		CreateAccount(ctx context.Context, acc NewAccount) (string, error)
		Authenticate(ctx context.Context, email, password string) (Session, error)
	}

	// ProfileDirectory resolves a student identifier to a reachable email
	// when the roster row has none. Implementations return "" (no error)
	// when nothing matches.
	ProfileDirectory interface {
		FindEmailByStudentIdentifier(ctx context.Context, identifier string) (string, error)
	}

	ServiceInterface interface {
		ValidateStudent(ctx context.Context, regNo, studentNo string) (StudentRecord, error)
		RequestOTP(ctx context.Context, email, studentRecordID string) (string, error)
		VerifyOTP(ctx context.Context, email, code string) error
		CompleteRegistration(ctx context.Context, reg Registration) error
		SignInWithIdentifier(ctx context.Context, identifier, password string) (Session, error)
	}

	service struct {
		repo     Repository
		identity Identity
		profiles ProfileDirectory
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
		nowFn    func() time.Time // mockable
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(
	repo Repository,
	identity Identity,
	profiles ProfileDirectory,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) ServiceInterface {
	return &service{
		repo:     repo,
		identity: identity,
		profiles: profiles,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
		nowFn:    time.Now,
	}
}

// ValidateStudent checks a prospective student against the roster.
// The returned record is not mutated.
func (svc *service) ValidateStudent(ctx context.Context, regNo, studentNo string) (StudentRecord, error) {
	rec, err := svc.repo.GetStudentRecord(ctx, core.CleanString(regNo), core.CleanString(studentNo))
	if err != nil {
		return StudentRecord{}, err
	}
	if rec.IsRegistered {
		return StudentRecord{}, ErrAlreadyRegistered
	}
	return rec, nil
}

// RequestOTP issues a fresh verification code for email and persists it.
// The code is mailed out asynchronously; delivery failures do not fail the
// request. Earlier pending codes for the same email are left untouched but
// lose at verification time to this newer one.
func (svc *service) RequestOTP(ctx context.Context, email, studentRecordID string) (string, error) {
	code, err := randomOTPCode()
	if err != nil {
		return "", err
	}

	now := svc.nowFn().UTC()
	otp := OTPVerification{
		Email:           core.CleanString(email, true /* lower */),
		Code:            code,
		StudentRecordID: studentRecordID,
		ExpiresAt:       now.Add(svc.conf.OTPTimeoutDelta),
		CreatedAt:       now,
	}
	if otp, err = svc.repo.CreateOTPVerification(ctx, otp); err != nil {
		return "", errors.Wrap(err, "saving verification code")
	}

	go svc.sendOTPMail(otp)
	return code, nil
}

func (svc *service) sendOTPMail(otp OTPVerification) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: otp.Email}},
		Subject:      "Your verification code",
		TemplateName: "otp_code",
		TemplateData: struct {
			Code         string
			ValidMinutes int
		}{otp.Code, int(svc.conf.OTPTimeoutDelta / time.Minute)},
	})
}

// VerifyOTP consumes the newest pending code matching (email, code).
// The read and the mark-verified write are two separate store calls; two
// concurrent attempts with the same code may both pass the read. The flow
// is not meant to resist concurrent replay.
func (svc *service) VerifyOTP(ctx context.Context, email, code string) error {
	otp, err := svc.repo.GetLatestPendingOTP(ctx, core.CleanString(email, true /* lower */), code, svc.nowFn().UTC())
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrOTPInvalidOrExpired
		}
		return errors.Wrap(err, "finding verification code")
	}
	if err = svc.repo.MarkOTPVerified(ctx, otp.ID); err != nil {
		return errors.Wrap(err, "marking code verified")
	}
	return nil
}

// CompleteRegistration creates the account and then flags the roster row.
// The flag update is best-effort: if it fails the account still exists and
// the roster stays unregistered until someone reconciles it by hand.
func (svc *service) CompleteRegistration(ctx context.Context, reg Registration) error {
	if _, err := svc.identity.CreateAccount(ctx, NewAccount{
		Email:              reg.Email,
		Password:           reg.Password,
		FullName:           reg.FullName,
		RegistrationNumber: reg.RegistrationNumber,
		StudentNumber:      reg.StudentNumber,
	}); err != nil {
		return err
	}

	if reg.RegistrationNumber == "" || reg.StudentNumber == "" {
		return nil
	}
	rec, err := svc.repo.GetStudentRecord(ctx, reg.RegistrationNumber, reg.StudentNumber)
	if err == nil {
		err = svc.repo.SetStudentRegistered(ctx, rec.ID)
	}
	if err != nil {
		svc.logger.Error(fmt.Sprintf("flagging roster row for %s: %v", reg.Email, err), err)
	}
	return nil
}

// SignInWithIdentifier signs a student in by registration or student number.
// When the roster row carries no email, the profile directory is consulted
// for an account holding the same identifier before giving up.
func (svc *service) SignInWithIdentifier(ctx context.Context, identifier, password string) (Session, error) {
	identifier = core.CleanString(identifier)

	rec, err := svc.repo.GetStudentRecordByIdentifier(ctx, identifier)
	if err != nil {
		return Session{}, err
	}

	email := rec.Email.String
	if email == "" {
		if email, err = svc.profiles.FindEmailByStudentIdentifier(ctx, identifier); err != nil {
			return Session{}, errors.Wrap(err, "looking up profile email")
		}
		if email == "" {
			return Session{}, ErrNoEmailAssociated
		}
	}

	// credential check is the identity collaborator's business; its error
	// comes back as is
	return svc.identity.Authenticate(ctx, email, password)
}
