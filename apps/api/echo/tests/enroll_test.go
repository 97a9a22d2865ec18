package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	echoapi "github.com/jkinyua/chuo/apps/api/echo"
	"github.com/jkinyua/chuo/core/enroll"
	emailsvc "github.com/jkinyua/chuo/services/email"
	testutil "github.com/jkinyua/chuo/tests"
)

func Test_enrollApi_validateStudent(t *testing.T) {
	env := setup(t)

	rec := testutil.CreateStudentRecord(t, env.enrollRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")
	registered := testutil.CreateStudentRecord(t, env.enrollRepo, "REG/2026/002", "S654321", "Juma Otieno", "")
	if err := env.enrollRepo.SetStudentRegistered(context.Background(), registered.ID); err != nil {
		t.Fatalf("SetStudentRegistered() failed: %v", err)
	}

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"registration_number": "this field is required",
				"student_number":      "this field is required",
			}),
		},
		{
			name:     "invalid characters",
			body:     marchallObj(t, enroll.ValidateStudentRequest{RegistrationNumber: "REG 001!", StudentNumber: "S123456"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"registration_number": "only letters, digits, '/' and '-' are allowed"}),
		},
		{
			name:     "unknown student",
			body:     marchallObj(t, enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/999", StudentNumber: "S999999"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "student record not found"}),
		},
		{
			name:     "numbers from different rows",
			body:     marchallObj(t, enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/002", StudentNumber: "S123456"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "student record not found"}),
		},
		{
			name:     "already registered",
			body:     marchallObj(t, enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/002", StudentNumber: "S654321"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "this student is already registered"}),
		},
		{
			name:     "found",
			body:     marchallObj(t, enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, rec),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/enrollment/validate-student"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_enrollApi_requestOTP(t *testing.T) {
	env := setup(t)

	testutil.CreateStudentRecord(t, env.enrollRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")

	tests := []httpTest{
		{
			name:     "invalid email",
			body:     marchallObj(t, enroll.OTPRequest{Email: "lol", RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name:     "unknown student",
			body:     marchallObj(t, enroll.OTPRequest{Email: "asha@test.cd", RegistrationNumber: "REG/2026/999", StudentNumber: "S999999"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "student record not found"}),
		},
		{
			name:     "code sent",
			body:     marchallObj(t, enroll.OTPRequest{Email: "asha@test.cd", RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "A verification code has been sent to the email address supplied."}),
			extra:    true, // email sent
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/enrollment/request-otp"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if wantSent, ok := tt.extra.(bool); ok && wantSent {
				if len(emailsvc.SentMessages) != 1 {
					t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
				}
				if to := emailsvc.SentMessages[0].To[0].Address; to != "asha@test.cd" {
					t.Errorf("failed! To = %v; want asha@test.cd", to)
				}
			}
		})
	}
}

var otpCodeRegex = regexp.MustCompile(`verification code is: (\d{4})`)

// Test_enrollApi_enrollmentFlow walks the whole self-service flow:
// validate -> request code -> verify -> register -> sign in.
func Test_enrollApi_enrollmentFlow(t *testing.T) {
	env := setup(t)

	testutil.CreateStudentRecord(t, env.enrollRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")

	do := func(path string, body interface{}) (*http.Response, []byte) {
		t.Helper()
		req, rec := newRequest(http.MethodPost, "/v1/enrollment/"+path, marchallObj(t, body))
		env.app.ServeHTTP(rec, req)
		return rec.Result(), rec.Body.Bytes()
	}

	// validate
	resp, _ := do("validate-student", enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate-student code = %d; want %d", resp.StatusCode, http.StatusOK)
	}

	// request the code and pluck it from the mail
	emailsvc.ClearSentMessages()
	resp, _ = do("request-otp", enroll.OTPRequest{Email: "asha@test.cd", RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request-otp code = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	match := otpCodeRegex.FindStringSubmatch(emailsvc.SentMessages[0].TextContent)
	if match == nil {
		t.Fatalf("no code found in mail body:\n%s", emailsvc.SentMessages[0].TextContent)
	}
	code := match[1]

	// a wrong code is rejected
	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}
	resp, body := do("verify-otp", enroll.VerifyOTPRequest{Email: "asha@test.cd", Code: wrong})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("verify-otp (wrong) code = %d; want %d; body %s", resp.StatusCode, http.StatusBadRequest, body)
	}

	// the mailed code passes
	resp, body = do("verify-otp", enroll.VerifyOTPRequest{Email: "asha@test.cd", Code: code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-otp code = %d; want %d; body %s", resp.StatusCode, http.StatusOK, body)
	}

	// register
	resp, body = do("register", enroll.Registration{
		Email:              "asha@test.cd",
		Password:           "Str0ng!Pass",
		PasswordConfirm:    "Str0ng!Pass",
		FullName:           "Asha Mwangi",
		RegistrationNumber: "REG/2026/001",
		StudentNumber:      "S123456",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register code = %d; want %d; body %s", resp.StatusCode, http.StatusCreated, body)
	}

	// the roster row is now flagged
	resp, _ = do("validate-student", enroll.ValidateStudentRequest{RegistrationNumber: "REG/2026/001", StudentNumber: "S123456"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("validate-student after register code = %d; want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// sign in by either number
	for _, identifier := range []string{"REG/2026/001", "S123456"} {
		resp, body = do("login", enroll.IdentifierLogin{Identifier: identifier, Password: "Str0ng!Pass"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("login (%s) code = %d; want %d; body %s", identifier, resp.StatusCode, http.StatusOK, body)
		}
		var respData echoapi.LoginResponse
		if err := json.Unmarshal(body, &respData); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Token == "" {
			t.Error("failed! empty token")
		}
	}

	// bad credentials stay vague
	resp, body = do("login", enroll.IdentifierLogin{Identifier: "S123456", Password: "nope-nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("login (bad pwd) code = %d; want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ok, _ := jsonBytesEqual(t, body, marchallObj(t, httpErr{Error: "invalid credentials"})); !ok {
		t.Errorf("failed! data = %s", body)
	}
}

func Test_enrollApi_verifyOTP(t *testing.T) {
	env := setup(t)

	rec := testutil.CreateStudentRecord(t, env.enrollRepo, "REG/2026/001", "S123456", "Asha Mwangi", "")

	// an expired code lying around
	now := time.Now().UTC()
	if _, err := env.enrollRepo.CreateOTPVerification(context.Background(), enroll.OTPVerification{
		Email:           "asha@test.cd",
		Code:            "4321",
		StudentRecordID: rec.ID,
		ExpiresAt:       now.Add(-time.Minute),
		CreatedAt:       now.Add(-11 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateOTPVerification() failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "code must be 4 digits",
			body:     marchallObj(t, enroll.VerifyOTPRequest{Email: "asha@test.cd", Code: "12345"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": "code must be 4 characters in length"}),
		},
		{
			name:     "unknown code",
			body:     marchallObj(t, enroll.VerifyOTPRequest{Email: "asha@test.cd", Code: "1234"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired verification code"}),
		},
		{
			name:     "expired code",
			body:     marchallObj(t, enroll.VerifyOTPRequest{Email: "asha@test.cd", Code: "4321"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired verification code"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/enrollment/verify-otp"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
