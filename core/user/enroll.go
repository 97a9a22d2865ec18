package user

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core/enroll"
)

// EnrollmentGateway lets the enrollment flow create and authenticate
// student accounts without depending on this package's types.
type EnrollmentGateway struct {
	svc ServiceInterface
}

var (
	_ enroll.Identity         = (*EnrollmentGateway)(nil)
	_ enroll.ProfileDirectory = (*EnrollmentGateway)(nil)
)

func NewEnrollmentGateway(svc ServiceInterface) *EnrollmentGateway {
	return &EnrollmentGateway{svc: svc}
}

// CreateAccount creates a student profile for a verified enrollment.
func (gw *EnrollmentGateway) CreateAccount(ctx context.Context, acc enroll.NewAccount) (string, error) {
	if err := gw.svc.CheckUniqueness("", acc.Email); err != nil {
		return "", err
	}
	usr, err := gw.svc.Create(ctx, NewUser{
		Name:               acc.FullName,
		Email:              acc.Email,
		Password:           acc.Password,
		PasswordConfirm:    acc.Password,
		Roles:              StudentRoles,
		StudentNumber:      acc.StudentNumber,
		RegistrationNumber: acc.RegistrationNumber,
	})
	if err != nil {
		return "", errors.Wrap(err, "creating student account")
	}
	return usr.ID, nil
}

// Authenticate checks credentials against the profile store.
func (gw *EnrollmentGateway) Authenticate(ctx context.Context, email, password string) (enroll.Session, error) {
	usr, err := gw.svc.GetByUsernameOrEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return enroll.Session{}, ErrInvalidCredentials
		}
		return enroll.Session{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(password); err != nil {
		return enroll.Session{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return enroll.Session{}, ErrInvalidCredentials
	}
	if usr, err = gw.svc.SetLastLogin(ctx, usr); err != nil {
		return enroll.Session{}, errors.Wrap(err, "setting lastLogin")
	}
	return enroll.Session{
		UserID:   usr.ID,
		Name:     usr.Name,
		Username: usr.Username,
		Email:    usr.Email,
		Roles:    usr.Roles,
	}, nil
}

// FindEmailByStudentIdentifier looks for a profile holding the given
// student or registration number. Returns "" when nothing matches.
func (gw *EnrollmentGateway) FindEmailByStudentIdentifier(ctx context.Context, identifier string) (string, error) {
	usr, err := gw.svc.GetByStudentIdentifier(ctx, identifier)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return "", nil
		}
		return "", errors.Wrap(err, "finding user by student identifier")
	}
	return usr.Email, nil
}
