package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	ServiceInterface interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetByStudentIdentifier(ctx context.Context, identifier string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) ServiceInterface {
	secretKey = []byte(conf.SecretKey)
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nu.StudentNumber != "" {
		usr.StudentNumber.SetValid(nu.StudentNumber)
	}
	if nu.RegistrationNumber != "" {
		usr.RegistrationNumber.SetValid(nu.RegistrationNumber)
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
}

func (svc *service) GetByStudentIdentifier(ctx context.Context, identifier string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{StudentIdentifier: core.CleanString(identifier)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		Roles:     uu.Roles,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

// RequestPasswordReset emails a timed reset link to the account matching email.
// The caller is expected to swallow ErrNotFound to avoid leaking accounts.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), makeToken(usr)},
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr, nil); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}
