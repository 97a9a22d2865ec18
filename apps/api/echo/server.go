package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
)

type (
	// Deps holds the Server's dependencies.
	Deps struct {
		Conf           *core.Config
		Logger         core.Logger
		UserSvc        user.ServiceInterface
		QuizSvc        quiz.ServiceInterface
		EnrollSvc      enroll.ServiceInterface
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		addr       string
		deps       *Deps
		app        *echo.Echo
		errCh      chan error
		shutdownCh chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps *Deps) Server {
	initAuth(deps.Conf)

	s := &server{
		addr:       deps.Conf.Server.Host,
		deps:       deps,
		app:        echo.New(),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.deps.UserSvc, s.deps.Validate, s.deps.Translator)
	registerQuizAPI(v1, jwt, s.deps.QuizSvc, s.deps.Validate)
	registerEnrollAPI(v1, s.deps.EnrollSvc, s.deps.Validate)
}

func (s *server) Start() {
	s.errCh <- s.app.Start(s.addr)
}

func (s *server) Errors() <-chan error {
	return s.errCh
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)
	return s.shutdownCh
}

// signalShutdown lets the error handler request a graceful stop.
func (s *server) signalShutdown() {
	s.shutdownCh <- syscall.SIGTERM
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Chuo API!")
}
