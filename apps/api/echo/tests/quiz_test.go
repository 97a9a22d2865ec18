package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
	testutil "github.com/jkinyua/chuo/tests"
)

func Test_quizApi_queryVisible(t *testing.T) {
	env := setup(t)

	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	lecturer := testutil.CreateUser(t, env.usrRepo, "Prof", "prof01", "prof@test.cd", "", []string{user.RoleLecturer}, true)

	now := time.Now().UTC()
	live := testutil.CreateQuiz(t, env.quizRepo, "Live", "CS101", lecturer.ID, quiz.StatusActive, now.Add(-time.Hour), null.TimeFrom(now.Add(time.Hour)))
	openEnded := testutil.CreateQuiz(t, env.quizRepo, "Open-ended", "CS101", lecturer.ID, quiz.StatusActive, now.Add(-time.Hour), null.Time{})
	testutil.CreateQuiz(t, env.quizRepo, "Not started", "CS101", lecturer.ID, quiz.StatusActive, now.Add(time.Hour), null.Time{})
	testutil.CreateQuiz(t, env.quizRepo, "Draft", "CS101", lecturer.ID, quiz.StatusDraft, now.Add(-time.Hour), null.Time{})
	otherCourse := testutil.CreateQuiz(t, env.quizRepo, "Other course", "CS202", lecturer.ID, quiz.StatusActive, now.Add(-time.Hour), null.Time{})

	tests := []httpTest{
		{name: "Auth required", path: "/v1/quizzes/visible", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students can browse", path: "/v1/quizzes/visible", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallList(t, live, openEnded, otherCourse),
		},
		{
			name: "Lecturers can browse too", path: "/v1/quizzes/visible", token: getToken(t, lecturer),
			wantCode: http.StatusOK, wantData: marchallList(t, live, openEnded, otherCourse),
		},
		{
			name: "Course filter", path: "/v1/quizzes/visible?course_id=CS101", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallList(t, live, openEnded),
		},
		{
			name: "Course filter (empty)", path: "/v1/quizzes/visible?course_id=CS303", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_quizApi_query(t *testing.T) {
	env := setup(t)

	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	lecturer1 := testutil.CreateUser(t, env.usrRepo, "Prof One", "prof01", "prof1@test.cd", "", []string{user.RoleLecturer}, true)
	lecturer2 := testutil.CreateUser(t, env.usrRepo, "Prof Two", "prof02", "prof2@test.cd", "", []string{user.RoleLecturer}, true)
	registrar := testutil.CreateUser(t, env.usrRepo, "Reg", "regist", "reg@test.cd", "", []string{user.RoleRegistrar}, true)

	now := time.Now().UTC()
	mine := testutil.CreateQuiz(t, env.quizRepo, "Mine", "CS101", lecturer1.ID, quiz.StatusActive, now.Add(-time.Hour), null.Time{})
	draft := testutil.CreateQuiz(t, env.quizRepo, "My draft", "CS101", lecturer1.ID, quiz.StatusDraft, now.Add(time.Hour), null.Time{})
	other := testutil.CreateQuiz(t, env.quizRepo, "Other", "CS202", lecturer2.ID, quiz.StatusActive, now.Add(-time.Hour), null.Time{})

	tests := []httpTest{
		{name: "Auth required", path: "/v1/quizzes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students not allowed", path: "/v1/quizzes", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Lecturers only see their own", path: "/v1/quizzes", token: getToken(t, lecturer1),
			wantCode: http.StatusOK, wantData: marchallList(t, mine, draft),
		},
		{
			name: "Registrars see all", path: "/v1/quizzes", token: getToken(t, registrar),
			wantCode: http.StatusOK, wantData: marchallList(t, mine, draft, other),
		},
		{
			name: "Status filter", path: "/v1/quizzes?status=draft", token: getToken(t, lecturer1),
			wantCode: http.StatusOK, wantData: marchallList(t, draft),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// Test_quizApi_query_sweepsExpired checks that listing quizzes closes
// expired ones on the way.
func Test_quizApi_query_sweepsExpired(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	lecturer := testutil.CreateUser(t, env.usrRepo, "Prof", "prof01", "prof@test.cd", "", []string{user.RoleLecturer}, true)

	now := time.Now().UTC()
	expired := testutil.CreateQuiz(t, env.quizRepo, "Expired", "CS101", lecturer.ID, quiz.StatusActive, now.Add(-24*time.Hour), null.TimeFrom(now.Add(-time.Hour)))

	req, rec := newAuthRequest(http.MethodGet, "/v1/quizzes", getToken(t, lecturer))
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}

	q, err := env.quizRepo.GetQuizByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetQuizByID() failed: %v", err)
	}
	if q.Status != quiz.StatusClosed {
		t.Errorf("swept quiz status = %s; want %s", q.Status, quiz.StatusClosed)
	}
}

func Test_quizApi_create(t *testing.T) {
	env := setup(t)

	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	lecturer := testutil.CreateUser(t, env.usrRepo, "Prof", "prof01", "prof@test.cd", "", []string{user.RoleLecturer}, true)

	start := time.Now().UTC().Add(time.Hour)
	payload := marchallObj(t, quiz.NewQuiz{Title: "Midterm", CourseID: "CS101", StartDate: start})

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students not allowed", token: getToken(t, student), body: payload,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Title required", token: getToken(t, lecturer),
			body:     marchallObj(t, quiz.NewQuiz{CourseID: "CS101", StartDate: start}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "End before start", token: getToken(t, lecturer),
			body: marchallObj(t, quiz.NewQuiz{
				Title: "Midterm", CourseID: "CS101",
				StartDate: start, EndDate: null.TimeFrom(start.Add(-time.Hour)),
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_date": "end date must not be before start date"}),
		},
		{
			name: "Closed is not a valid initial status", token: getToken(t, lecturer),
			body:     marchallObj(t, quiz.NewQuiz{Title: "Midterm", CourseID: "CS101", Status: quiz.StatusClosed, StartDate: start}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "status must be one of [draft active]"}),
		},
		{name: "Created", token: getToken(t, lecturer), body: payload, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/quizzes"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var q quiz.Quiz
				if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if q.ID == "" {
					t.Error("failed! quiz has no ID")
				}
				if q.OwnerID != lecturer.ID {
					t.Errorf("failed! owner_id = %s; want %s", q.OwnerID, lecturer.ID)
				}
				if q.Status != quiz.StatusDraft {
					t.Errorf("failed! status = %s; want %s", q.Status, quiz.StatusDraft)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_quizApi_detail(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	lecturer1 := testutil.CreateUser(t, env.usrRepo, "Prof One", "prof01", "prof1@test.cd", "", []string{user.RoleLecturer}, true)
	lecturer2 := testutil.CreateUser(t, env.usrRepo, "Prof Two", "prof02", "prof2@test.cd", "", []string{user.RoleLecturer}, true)
	registrar := testutil.CreateUser(t, env.usrRepo, "Reg", "regist", "reg@test.cd", "", []string{user.RoleRegistrar}, true)

	now := time.Now().UTC()
	mine := testutil.CreateQuiz(t, env.quizRepo, "Mine", "CS101", lecturer1.ID, quiz.StatusActive, now.Add(-time.Hour), null.Time{})

	notFound := marchallObj(t, httpErr{Error: "not found"})
	tests := []httpTest{
		{name: "Owner can retrieve", token: getToken(t, lecturer1), wantCode: http.StatusOK, wantData: marchallObj(t, mine)},
		{name: "Registrar can retrieve", token: getToken(t, registrar), wantCode: http.StatusOK, wantData: marchallObj(t, mine)},
		{name: "Other lecturers cannot", token: getToken(t, lecturer2), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/quizzes/" + mine.ID

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// update
	t.Run("Owner can update", func(t *testing.T) {
		body := marchallObj(t, quiz.UpdateQuiz{Title: "Mine (renamed)"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/quizzes/"+mine.ID, getToken(t, lecturer1), body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var q quiz.Quiz
		if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if q.Title != "Mine (renamed)" {
			t.Errorf("failed! title = %s", q.Title)
		}
		if q.Status != quiz.StatusActive {
			t.Errorf("failed! status = %s; want untouched %s", q.Status, quiz.StatusActive)
		}
	})

	// close
	t.Run("Other lecturers cannot close", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/quizzes/"+mine.ID+"/close", getToken(t, lecturer2))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
		}
	})
	t.Run("Owner can close", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/quizzes/"+mine.ID+"/close", getToken(t, lecturer1))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusNoContent)
		}
		q, err := env.quizRepo.GetQuizByID(ctx, mine.ID)
		if err != nil {
			t.Fatalf("GetQuizByID() failed: %v", err)
		}
		if q.Status != quiz.StatusClosed {
			t.Errorf("failed! status = %s; want %s", q.Status, quiz.StatusClosed)
		}
	})
}
