package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/user"
)

type enrollApi struct {
	svc      enroll.ServiceInterface
	validate *validator.Validate
}

// registerEnrollAPI registers the self-service enrollment flow. All of it
// runs before the student has an account, so none of it is behind auth.
func registerEnrollAPI(g *echo.Group, svc enroll.ServiceInterface, validate *validator.Validate) {
	api := enrollApi{
		svc:      svc,
		validate: validate,
	}

	eg := g.Group("/enrollment")
	eg.POST("/validate-student", api.validateStudent)
	eg.POST("/request-otp", api.requestOTP)
	eg.POST("/verify-otp", api.verifyOTP)
	eg.POST("/register", api.register)
	eg.POST("/login", api.login)
}

// Handlers

func (api *enrollApi) validateStudent(ctx echo.Context) error {
	var data enroll.ValidateStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ValidateStudentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.ValidateStudent(ctx.Request().Context(), data.RegistrationNumber, data.StudentNumber)
	if err != nil {
		switch errors.Cause(err) {
		case enroll.ErrNotFound, enroll.ErrAlreadyRegistered:
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "validating student")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *enrollApi) requestOTP(ctx echo.Context) error {
	var data enroll.OTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	rec, err := api.svc.ValidateStudent(reqCtx, data.RegistrationNumber, data.StudentNumber)
	if err != nil {
		switch errors.Cause(err) {
		case enroll.ErrNotFound, enroll.ErrAlreadyRegistered:
			return core.NewValidationError(errors.Cause(err))
		}
		return errors.Wrap(err, "validating student")
	}

	if _, err = api.svc.RequestOTP(reqCtx, data.Email, rec.ID); err != nil {
		return errors.Wrap(err, "requesting verification code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "A verification code has been sent to the email address supplied.",
	})
}

func (api *enrollApi) verifyOTP(ctx echo.Context) error {
	var data enroll.VerifyOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyOTPRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.VerifyOTP(ctx.Request().Context(), data.Email, data.Code); err != nil {
		if errors.Cause(err) == enroll.ErrOTPInvalidOrExpired {
			return core.NewValidationError(enroll.ErrOTPInvalidOrExpired)
		}
		return errors.Wrap(err, "verifying code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Email address verified."})
}

func (api *enrollApi) register(ctx echo.Context) error {
	var data enroll.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.CompleteRegistration(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "completing registration")
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "Registration complete. You can now sign in."})
}

func (api *enrollApi) login(ctx echo.Context) error {
	var data enroll.IdentifierLogin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IdentifierLogin")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.SignInWithIdentifier(ctx.Request().Context(), data.Identifier, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case enroll.ErrNotFound, enroll.ErrNoEmailAssociated, user.ErrInvalidCredentials:
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "signing in")
	}

	token, err := GenerateToken(GetSessionClaims(sess))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}
