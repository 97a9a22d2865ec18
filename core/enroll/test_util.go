package enroll

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose OTP mail goes out synchronously
// so tests can assert on sent messages.
func NewServiceMock(
	repo Repository,
	identity Identity,
	profiles ProfileDirectory,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) ServiceInterface {
	return &serviceMock{
		service: service{
			repo:     repo,
			identity: identity,
			profiles: profiles,
			mailSvc:  mailSvc,
			logger:   logger,
			conf:     conf,
			nowFn:    time.Now,
		},
	}
}

func (svc *serviceMock) RequestOTP(ctx context.Context, email, studentRecordID string) (string, error) {
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

	// run synchronously
	svc.sendOTPMail(otp)
	return code, nil
}
