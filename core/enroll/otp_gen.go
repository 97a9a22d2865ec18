package enroll

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

var otpCodeRange = big.NewInt(9000)

// randomOTPCode returns a uniformly random 4-digit code in [1000, 9999].
// Codes are not unique; verification matches on the (email, code) pair
// and only honors the newest pending row.
func randomOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCodeRange)
	if err != nil {
		return "", errors.Wrap(err, "generating verification code")
	}
	return strconv.FormatInt(n.Int64()+1000, 10), nil
}
