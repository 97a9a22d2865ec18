package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/jkinyua/chuo/apps/api/echo"
	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
	emailsvc "github.com/jkinyua/chuo/services/email"
	dummydb "github.com/jkinyua/chuo/storage/database/dummy"
	testutil "github.com/jkinyua/chuo/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// rosterRepository is the enrollment store plus roster inserts for seeding.
type rosterRepository interface {
	enroll.Repository
	CreateStudentRecord(ctx context.Context, rec enroll.StudentRecord) (enroll.StudentRecord, error)
}

type testEnv struct {
	app        echoapi.Server
	conf       *core.Config
	usrRepo    user.Repository
	quizRepo   quiz.Repository
	enrollRepo rosterRepository
}

func setup(t *testing.T) testEnv {
	t.Helper()

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	quizRepo := dummydb.NewQuizRepository(db)
	enrollRepo := dummydb.NewEnrollRepository(db)

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()

	// set up validators & templates
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	quizSvc := quiz.NewService(quizRepo, logger)
	gateway := user.NewEnrollmentGateway(usrSvc)
	enrollSvc := enroll.NewServiceMock(enrollRepo, gateway, gateway, mailSvc, logger, conf)

	// set up server
	app := echoapi.NewServer(
		&echoapi.Deps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			QuizSvc:        quizSvc,
			EnrollSvc:      enrollSvc,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)

	return testEnv{
		app:        app,
		conf:       conf,
		usrRepo:    usrRepo,
		quizRepo:   quizRepo,
		enrollRepo: enrollRepo,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(usr)
	token, err := echoapi.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if ok1 && ok2 {
		// order does not matter for lists
		return assert.ElementsMatch(t, l1, l2), nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
