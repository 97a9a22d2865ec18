package quiz_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/quiz"
	dummydb "github.com/jkinyua/chuo/storage/database/dummy"
	testutil "github.com/jkinyua/chuo/tests"
)

func setup(t *testing.T) (quiz.ServiceInterface, quiz.Repository, *testutil.Logger) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewQuizRepository(db)
	logger := testutil.NewLogger()
	return quiz.NewService(repo, logger), repo, logger
}

func TestQuiz_Visible(t *testing.T) {
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)
	withEnd := func(end time.Time) null.Time { return null.TimeFrom(end) }

	tests := []struct {
		name string
		quiz quiz.Quiz
		want bool
	}{
		{
			name: "active within window",
			quiz: quiz.Quiz{
				Status:    quiz.StatusActive,
				StartDate: time.Date(2026, 1, 9, 1, 10, 0, 0, time.UTC),
				EndDate:   withEnd(time.Date(2026, 1, 23, 1, 9, 0, 0, time.UTC)),
			},
			want: true,
		},
		{
			name: "active, no end date",
			quiz: quiz.Quiz{Status: quiz.StatusActive, StartDate: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "active, starts exactly now",
			quiz: quiz.Quiz{Status: quiz.StatusActive, StartDate: now},
			want: true,
		},
		{
			name: "active, ends exactly now",
			quiz: quiz.Quiz{Status: quiz.StatusActive, StartDate: now.Add(-time.Hour), EndDate: withEnd(now)},
			want: true,
		},
		{
			name: "active but not started",
			quiz: quiz.Quiz{Status: quiz.StatusActive, StartDate: now.Add(time.Minute)},
			want: false,
		},
		{
			name: "active but ended",
			quiz: quiz.Quiz{Status: quiz.StatusActive, StartDate: now.Add(-2 * time.Hour), EndDate: withEnd(now.Add(-time.Minute))},
			want: false,
		},
		{
			name: "draft within window",
			quiz: quiz.Quiz{Status: quiz.StatusDraft, StartDate: now.Add(-time.Hour)},
			want: false,
		},
		{
			name: "closed within window",
			quiz: quiz.Quiz{Status: quiz.StatusClosed, StartDate: now.Add(-time.Hour)},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quiz.Visible(now); got != tt.want {
				t.Errorf("Visible() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestService_AutoCloseExpired(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	past := null.TimeFrom(now.Add(-time.Hour))
	future := null.TimeFrom(now.Add(time.Hour))

	expired1 := testutil.CreateQuiz(t, repo, "Expired 1", "CS101", "owner1", quiz.StatusActive, now.Add(-24*time.Hour), past)
	expired2 := testutil.CreateQuiz(t, repo, "Expired 2", "CS101", "owner2", quiz.StatusActive, now.Add(-24*time.Hour), past)
	running := testutil.CreateQuiz(t, repo, "Running", "CS101", "owner1", quiz.StatusActive, now.Add(-time.Hour), future)
	openEnded := testutil.CreateQuiz(t, repo, "Open-ended", "CS101", "owner1", quiz.StatusActive, now.Add(-time.Hour), null.Time{})
	draft := testutil.CreateQuiz(t, repo, "Draft", "CS101", "owner1", quiz.StatusDraft, now.Add(-24*time.Hour), past)

	closed := svc.AutoCloseExpired(ctx)
	sort.Strings(closed)
	want := []string{expired1.ID, expired2.ID}
	sort.Strings(want)
	if len(closed) != len(want) {
		t.Fatalf("AutoCloseExpired() = %v; want %v", closed, want)
	}
	for i := range want {
		if closed[i] != want[i] {
			t.Fatalf("AutoCloseExpired() = %v; want %v", closed, want)
		}
	}

	assertStatus := func(id, want string) {
		t.Helper()
		q, err := repo.GetQuizByID(ctx, id)
		if err != nil {
			t.Fatalf("GetQuizByID(%s) failed: %v", id, err)
		}
		if q.Status != want {
			t.Errorf("quiz %s status = %s; want %s", id, q.Status, want)
		}
	}
	assertStatus(expired1.ID, quiz.StatusClosed)
	assertStatus(expired2.ID, quiz.StatusClosed)
	assertStatus(running.ID, quiz.StatusActive)
	assertStatus(openEnded.ID, quiz.StatusActive)
	assertStatus(draft.ID, quiz.StatusDraft)

	// the sweep is idempotent: closed quizzes drop out of the next pass
	if again := svc.AutoCloseExpired(ctx); len(again) != 0 {
		t.Errorf("second AutoCloseExpired() = %v; want none", again)
	}
}

func TestService_AutoCloseExpired_ownerScope(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	past := null.TimeFrom(now.Add(-time.Hour))

	mine := testutil.CreateQuiz(t, repo, "Mine", "CS101", "owner1", quiz.StatusActive, now.Add(-24*time.Hour), past)
	other := testutil.CreateQuiz(t, repo, "Other", "CS101", "owner2", quiz.StatusActive, now.Add(-24*time.Hour), past)

	closed := svc.AutoCloseExpired(ctx, "owner1")
	if len(closed) != 1 || closed[0] != mine.ID {
		t.Fatalf("AutoCloseExpired(owner1) = %v; want [%s]", closed, mine.ID)
	}

	q, err := repo.GetQuizByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetQuizByID() failed: %v", err)
	}
	if q.Status != quiz.StatusActive {
		t.Errorf("other owner's quiz status = %s; want %s", q.Status, quiz.StatusActive)
	}
}

type failingRepo struct {
	quiz.Repository
}

func (failingRepo) QueryQuizzes(ctx context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	return nil, errors.New("connection refused")
}

func TestService_AutoCloseExpired_fetchFailure(t *testing.T) {
	logger := testutil.NewLogger()
	svc := quiz.NewService(failingRepo{}, logger)

	if closed := svc.AutoCloseExpired(context.Background()); closed != nil {
		t.Errorf("AutoCloseExpired() = %v; want nil", closed)
	}
	if len(logger.ErrorMessages) == 0 {
		t.Error("expected the fetch failure to be logged")
	}
}

func TestService_QueryVisible(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	past := null.TimeFrom(now.Add(-time.Hour))
	future := null.TimeFrom(now.Add(time.Hour))

	live := testutil.CreateQuiz(t, repo, "Live", "CS101", "owner1", quiz.StatusActive, now.Add(-time.Hour), future)
	testutil.CreateQuiz(t, repo, "Expired", "CS101", "owner1", quiz.StatusActive, now.Add(-24*time.Hour), past)
	testutil.CreateQuiz(t, repo, "Not started", "CS101", "owner1", quiz.StatusActive, now.Add(time.Hour), null.Time{})
	testutil.CreateQuiz(t, repo, "Draft", "CS101", "owner1", quiz.StatusDraft, now.Add(-time.Hour), null.Time{})
	testutil.CreateQuiz(t, repo, "Other course", "CS202", "owner1", quiz.StatusActive, now.Add(-time.Hour), null.Time{})

	visible, err := svc.QueryVisible(ctx, "CS101")
	if err != nil {
		t.Fatalf("QueryVisible() failed: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != live.ID {
		t.Fatalf("QueryVisible() = %v; want [%s]", visible, live.ID)
	}

	// the listing also swept the expired quiz
	quizzes, err := svc.Query(ctx, &quiz.QueryFilter{Status: quiz.StatusClosed}, nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].Title != "Expired" {
		t.Errorf("expected the expired quiz to be closed by the listing; got %v", quizzes)
	}
}

func TestService_CreateAndUpdate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)
	q, err := svc.Create(ctx, "owner1", quiz.NewQuiz{
		Title:     "Midterm",
		CourseID:  "CS101",
		StartDate: start,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if q.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if q.Status != quiz.StatusDraft {
		t.Errorf("Create() status = %s; want %s", q.Status, quiz.StatusDraft)
	}
	if q.OwnerID != "owner1" {
		t.Errorf("Create() ownerID = %s; want owner1", q.OwnerID)
	}

	upd, err := svc.Update(ctx, q, quiz.UpdateQuiz{
		Title:     "Midterm (updated)",
		Status:    quiz.StatusActive,
		StartDate: start,
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if upd.Title != "Midterm (updated)" || upd.Status != quiz.StatusActive {
		t.Errorf("Update() = %+v", upd)
	}

	if err = svc.Close(ctx, q.ID); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	got, err := svc.GetByID(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Status != quiz.StatusClosed {
		t.Errorf("status after Close() = %s; want %s", got.Status, quiz.StatusClosed)
	}
	// closing only flips the status, it is not an edit
	if !got.UpdatedAt.Equal(upd.UpdatedAt) {
		t.Errorf("Close() touched updated_at: %v -> %v", upd.UpdatedAt, got.UpdatedAt)
	}
}
