package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core"
)

var (
	// errors
	ErrNotFound = errors.New("quiz not found")
)

type (
	Repository interface {
		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		GetQuizByID(ctx context.Context, id string) (Quiz, error)
		QueryQuizzes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error)
		UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		// SetQuizStatus touches the status column only.
		SetQuizStatus(ctx context.Context, id, status string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, ownerID string, nq NewQuiz) (Quiz, error)
		GetByID(ctx context.Context, id string) (Quiz, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error)
		Update(ctx context.Context, orig Quiz, uq UpdateQuiz) (Quiz, error)
		Close(ctx context.Context, id string) error
		QueryVisible(ctx context.Context, courseID string) ([]Quiz, error)
		AutoCloseExpired(ctx context.Context, owner ...string) []string
	}

	service struct {
		repo   Repository
		logger core.Logger
		nowFn  func() time.Time // mockable
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, logger core.Logger) ServiceInterface {
	return &service{
		repo:   repo,
		logger: logger,
		nowFn:  time.Now,
	}
}

func (svc *service) Create(ctx context.Context, ownerID string, nq NewQuiz) (Quiz, error) {
	now := svc.nowFn().UTC()
	status := nq.Status
	if status == "" {
		status = StatusDraft
	}
	q := Quiz{
		Title:          nq.Title,
		Description:    nq.Description,
		CourseID:       nq.CourseID,
		OwnerID:        ownerID,
		Status:         status,
		StartDate:      nq.StartDate.UTC(),
		EndDate:        nq.EndDate,
		TimeLimitMins:  nq.TimeLimitMins,
		PassingScore:   nq.PassingScore,
		TotalQuestions: nq.TotalQuestions,
		TotalPoints:    nq.TotalPoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateQuiz(ctx, q)
}

func (svc *service) GetByID(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuizByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, orig Quiz, uq UpdateQuiz) (Quiz, error) {
	q := orig
	q.Title = uq.Title
	q.Description = uq.Description
	q.Status = uq.Status
	q.StartDate = uq.StartDate.UTC()
	q.EndDate = uq.EndDate
	q.TimeLimitMins = uq.TimeLimitMins
	q.PassingScore = uq.PassingScore
	q.TotalQuestions = uq.TotalQuestions
	q.TotalPoints = uq.TotalPoints
	q.UpdatedAt = svc.nowFn().UTC()
	return svc.repo.UpdateQuiz(ctx, q)
}

// Close manually closes a quiz. Closing an already closed quiz is a no-op.
func (svc *service) Close(ctx context.Context, id string) error {
	return svc.repo.SetQuizStatus(ctx, id, StatusClosed)
}

// QueryVisible lists the quizzes currently live for students on a course.
// It first runs the auto-close sweep so the listing never shows a quiz
// whose end date has already passed.
func (svc *service) QueryVisible(ctx context.Context, courseID string) ([]Quiz, error) {
	svc.AutoCloseExpired(ctx)

	quizzes, err := svc.repo.QueryQuizzes(ctx, &QueryFilter{Status: StatusActive, CourseID: courseID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying active quizzes")
	}

	now := svc.nowFn().UTC()
	visible := make([]Quiz, 0, len(quizzes))
	for _, q := range quizzes {
		if q.Visible(now) {
			visible = append(visible, q)
		}
	}
	return visible, nil
}

// AutoCloseExpired closes every active quiz whose end date has passed,
// optionally restricted to one owner. It is a best-effort reconciliation
// pass meant to be invoked opportunistically (eg. on page load): update
// failures are logged and skipped, never raised, and a fetch failure
// yields an empty result. The returned IDs are the ones targeted for
// closure, not the ones confirmed closed.
//
// Calling it again with no intervening state change is a no-op: closed
// quizzes drop out of the active-status query.
func (svc *service) AutoCloseExpired(ctx context.Context, owner ...string) []string {
	filter := &QueryFilter{Status: StatusActive, WithEndDateOnly: true}
	if len(owner) > 0 {
		filter.OwnerID = owner[0]
	}

	quizzes, err := svc.repo.QueryQuizzes(ctx, filter, nil)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("querying active quizzes: %v", err), errors.Wrap(err, "querying active quizzes"))
		return nil
	}

	now := svc.nowFn().UTC()
	expired := make([]string, 0, len(quizzes))
	for _, q := range quizzes {
		if q.Expired(now) {
			expired = append(expired, q.ID)
		}
	}

	// the updates target disjoint rows; dispatch them independently and
	// wait for every one to settle before returning
	var wg sync.WaitGroup
	for _, id := range expired {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := svc.repo.SetQuizStatus(ctx, id, StatusClosed); err != nil {
				svc.logger.Error(fmt.Sprintf("closing quiz %s: %v", id, err), err)
			}
		}(id)
	}
	wg.Wait()

	return expired
}
