package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jkinyua/chuo/core/quiz"
)

type quizApi struct {
	svc      quiz.ServiceInterface
	validate *validator.Validate
}

func registerQuizAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc quiz.ServiceInterface,
	validate *validator.Validate,
) {
	api := quizApi{
		svc:      svc,
		validate: validate,
	}

	qg := g.Group("/quizzes", jwt)

	// the student listing; every authed role can browse it
	qg.GET("/visible", api.queryVisible)

	// management endpoints
	mg := qg.Group("", lecturerMiddleware())
	mg.POST("", api.create)
	mg.GET("", api.query)
	mg.GET("/:id", api.retrieve)
	mg.PUT("/:id", api.update)
	mg.POST("/:id/close", api.close)
}

// Handlers

func (api *quizApi) create(ctx echo.Context) error {
	var data quiz.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	q, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

// query lists quizzes for management. Lecturers only see their own; the
// sweep for expired quizzes runs first so stale "active" rows never show.
func (api *quizApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(quiz.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []quiz.Quiz{})
	}
	reqCtx := ctx.Request().Context()
	if !claims.IsRegistrar {
		filter.OwnerID = claims.Subject
		api.svc.AutoCloseExpired(reqCtx, claims.Subject)
	} else {
		api.svc.AutoCloseExpired(reqCtx)
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	quizzes, err := api.svc.Query(reqCtx, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	if quizzes == nil {
		quizzes = []quiz.Quiz{}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *quizApi) queryVisible(ctx echo.Context) error {
	quizzes, err := api.svc.QueryVisible(ctx.Request().Context(), ctx.QueryParam("course_id"))
	if err != nil {
		return errors.Wrap(err, "querying visible quizzes")
	}
	if quizzes == nil {
		quizzes = []quiz.Quiz{}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	q, err := api.getOwnedQuiz(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) update(ctx echo.Context) error {
	q, err := api.getOwnedQuiz(ctx)
	if err != nil {
		return err
	}

	var data quiz.UpdateQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuiz")
	}
	if err := data.Validate(q, api.validate); err != nil {
		return err
	}

	q, err = api.svc.Update(ctx.Request().Context(), q, data)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) close(ctx echo.Context) error {
	q, err := api.getOwnedQuiz(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Close(ctx.Request().Context(), q.ID); err != nil {
		return errors.Wrap(err, "closing quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// getOwnedQuiz fetches the quiz in the URL and enforces ownership:
// lecturers can only touch their own quizzes, registrars any.
func (api *quizApi) getOwnedQuiz(ctx echo.Context) (quiz.Quiz, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "getting context claims")
	}

	q, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == quiz.ErrNotFound {
			return quiz.Quiz{}, errHttpNotFound
		}
		return quiz.Quiz{}, errors.Wrap(err, "finding quiz by ID")
	}
	if !claims.IsRegistrar && q.OwnerID != claims.Subject {
		return quiz.Quiz{}, errHttpNotFound
	}
	return q, nil
}
