package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/quiz"
)

type quizRow struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Description    string    `db:"description"`
	CourseID       string    `db:"course_id"`
	OwnerID        string    `db:"owner_id"`
	Status         string    `db:"status"`
	StartDate      time.Time `db:"start_date"`
	EndDate        null.Time `db:"end_date"`
	TimeLimitMins  int       `db:"time_limit_mins"`
	PassingScore   int       `db:"passing_score"`
	TotalQuestions int       `db:"total_questions"`
	TotalPoints    int       `db:"total_points"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const quizColumns = `id, title, description, course_id, owner_id, status, start_date, end_date, time_limit_mins, passing_score, total_questions, total_points, created_at, updated_at`

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) *quizRepository {
	return &quizRepository{db: db}
}

func (repo quizRepository) pack(q quiz.Quiz) quizRow {
	return quizRow{
		ID:             q.ID,
		Title:          q.Title,
		Description:    q.Description,
		CourseID:       q.CourseID,
		OwnerID:        q.OwnerID,
		Status:         q.Status,
		StartDate:      q.StartDate.UTC(),
		EndDate:        q.EndDate,
		TimeLimitMins:  q.TimeLimitMins,
		PassingScore:   q.PassingScore,
		TotalQuestions: q.TotalQuestions,
		TotalPoints:    q.TotalPoints,
		CreatedAt:      q.CreatedAt.UTC(),
		UpdatedAt:      q.UpdatedAt.UTC(),
	}
}

func (repo quizRepository) unpack(row quizRow) quiz.Quiz {
	return quiz.Quiz{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		CourseID:       row.CourseID,
		OwnerID:        row.OwnerID,
		Status:         row.Status,
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
		TimeLimitMins:  row.TimeLimitMins,
		PassingScore:   row.PassingScore,
		TotalQuestions: row.TotalQuestions,
		TotalPoints:    row.TotalPoints,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" err to quiz.ErrNotFound
func (repo quizRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return quiz.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	q.ID = uuid.New().String()
	row := repo.pack(q)
	qry := `
INSERT INTO quiz (` + quizColumns + `)
VALUES (:id, :title, :description, :course_id, :owner_id, :status, :start_date, :end_date, :time_limit_mins, :passing_score, :total_questions, :total_points, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, qry, row); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return q, nil
}

func (repo quizRepository) GetQuizByID(ctx context.Context, id string) (quiz.Quiz, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	var row quizRow
	qry := `SELECT ` + quizColumns + ` FROM quiz WHERE id = ?`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(qry), id); err != nil {
		return quiz.Quiz{}, repo.trapNoRowsErr(err, "finding quiz by ID")
	}
	return repo.unpack(row), nil
}

func (repo quizRepository) QueryQuizzes(ctx context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	qry := `SELECT ` + quizColumns + ` FROM quiz`
	var where []string
	var args []interface{}

	if filter != nil {
		if filter.Status != "" {
			where = append(where, `status = ?`)
			args = append(args, filter.Status)
		}
		if filter.CourseID != "" {
			where = append(where, `course_id = ?`)
			args = append(args, filter.CourseID)
		}
		if filter.OwnerID != "" {
			where = append(where, `owner_id = ?`)
			args = append(args, filter.OwnerID)
		}
		if filter.WithEndDateOnly {
			where = append(where, `end_date IS NOT NULL`)
		}
	}

	if len(where) > 0 {
		qry += ` WHERE ` + strings.Join(where, " AND ")
	}
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		qry += ` ORDER BY ` + strings.Join(orderList, ", ")
	}

	var rows []quizRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(qry), args...); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, row := range rows {
		quizzes = append(quizzes, repo.unpack(row))
	}
	return quizzes, nil
}

func (repo quizRepository) UpdateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	row := repo.pack(q)
	qry := `
UPDATE quiz SET
	title = :title, description = :description, status = :status,
	start_date = :start_date, end_date = :end_date,
	time_limit_mins = :time_limit_mins, passing_score = :passing_score,
	total_questions = :total_questions, total_points = :total_points,
	updated_at = :updated_at
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, qry, row)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	return q, nil
}

func (repo quizRepository) SetQuizStatus(ctx context.Context, id, status string) error {
	qry := `UPDATE quiz SET status = ? WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(qry), status, id)
	if err != nil {
		return errors.Wrap(err, "updating quiz status")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return quiz.ErrNotFound
	}
	return nil
}
