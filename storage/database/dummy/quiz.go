package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/quiz"
)

type quizRepository struct {
	db *quizTable
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db.quiz}
}

func (repo *quizRepository) query() []quiz.Quiz {
	quizzes := make([]quiz.Quiz, 0, len(repo.db.table))
	for _, q := range repo.db.table {
		quizzes = append(quizzes, *q)
	}
	return quizzes
}

func (repo *quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = uuid.New().String()
	repo.db.table[q.ID] = &q
	return q, nil
}

func (repo *quizRepository) GetQuizByID(ctx context.Context, id string) (quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.table[id]; ok {
		return *q, nil
	}
	return quiz.Quiz{}, quiz.ErrNotFound
}

func (repo *quizRepository) QueryQuizzes(ctx context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	quizzes := repo.query()
	if filter == nil {
		return quizzes, nil
	}

	if filter.Status != "" {
		var filtered []quiz.Quiz
		for _, q := range quizzes {
			if q.Status == filter.Status {
				filtered = append(filtered, q)
			}
		}
		quizzes = filtered
	}
	if quizzes != nil && filter.CourseID != "" {
		var filtered []quiz.Quiz
		for _, q := range quizzes {
			if q.CourseID == filter.CourseID {
				filtered = append(filtered, q)
			}
		}
		quizzes = filtered
	}
	if quizzes != nil && filter.OwnerID != "" {
		var filtered []quiz.Quiz
		for _, q := range quizzes {
			if q.OwnerID == filter.OwnerID {
				filtered = append(filtered, q)
			}
		}
		quizzes = filtered
	}
	if quizzes != nil && filter.WithEndDateOnly {
		var filtered []quiz.Quiz
		for _, q := range quizzes {
			if q.EndDate.Valid {
				filtered = append(filtered, q)
			}
		}
		quizzes = filtered
	}

	return quizzes, nil
}

func (repo *quizRepository) UpdateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[q.ID]; !ok {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	repo.db.table[q.ID] = &q
	return q, nil
}

func (repo *quizRepository) SetQuizStatus(ctx context.Context, id, status string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	q, ok := repo.db.table[id]
	if !ok {
		return quiz.ErrNotFound
	}
	q.Status = status
	return nil
}
