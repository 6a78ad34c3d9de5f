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
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/device"
	pushsvc "github.com/trezcool/masomo-chat/services/push"
	realtimesvc "github.com/trezcool/masomo-chat/services/realtime"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		ChatSvc    *chat.Service
		DeviceSvc  *device.Service
		PushSvc    *pushsvc.Service
		Hub        *realtimesvc.Hub
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		app      *echo.Echo
		deps     ServerDeps
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf.Server.SecretKey))

	registerMessageAPI(v1, jwt, s.deps.ChatSvc)
	registerDeviceTokenAPI(
		v1,
		jwt,
		s.deps.DeviceSvc,
		s.deps.PushSvc,
		s.deps.Validate,
		newLimiterPool(rate.Every(conf.Push.TestRateInterval), conf.Push.TestRateBurst),
	)

	// browsers cannot set headers on websocket upgrades
	wsJWT := middleware.JWTWithConfig(jwtConfig(conf.Server.SecretKey, "query:"+wsTokenQueryName))
	registerRealtimeAPI(s.app, wsJWT, s.deps.Hub, conf.Realtime, s.deps.Logger)
}

// Start starts the server and reports any error other than a graceful close on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Masomo Chat API!")
}
