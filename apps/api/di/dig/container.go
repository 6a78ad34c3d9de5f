package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-chat/apps/api/echo"
	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
	emailsvc "github.com/trezcool/masomo-chat/services/email"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
	metricsvc "github.com/trezcool/masomo-chat/services/metrics"
	pushsvc "github.com/trezcool/masomo-chat/services/push"
	realtimesvc "github.com/trezcool/masomo-chat/services/realtime"
	"github.com/trezcool/masomo-chat/storage/database"
	inmemdb "github.com/trezcool/masomo-chat/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-chat/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	PushLoggerParam struct {
		dig.In
		Logger core.Logger `name:"pushLogger"`
	}

	// Storage holds the repositories. SQL is nil when running in memory.
	Storage struct {
		dig.Out
		SQL         *sqlx.DB
		MessageRepo chat.Repository
		TokenRepo   device.Repository
	}

	// Realtime holds the session hub. Relay is nil unless a redis address is configured.
	Realtime struct {
		dig.Out
		Hub   *realtimesvc.Hub
		Relay *realtimesvc.RedisRelay
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		ChatSvc    *chat.Service
		DeviceSvc  *device.Service
		PushSvc    *pushsvc.Service
		Hub        *realtimesvc.Hub
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New("API", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New("DB", conf)
}

func newPushLogger(conf *core.Config) core.Logger {
	return logsvc.New("PUSH", conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.IsInMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive a restart")
		db := inmemdb.Open()
		return Storage{
			MessageRepo: inmemdb.NewMessageRepository(db),
			TokenRepo:   inmemdb.NewDeviceTokenRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		SQL:         db,
		MessageRepo: sqlxrepos.NewMessageRepository(db),
		TokenRepo:   sqlxrepos.NewDeviceTokenRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newPushGateway(conf *core.Config, loggerParam PushLoggerParam) pushsvc.Gateway {
	if conf.Debug {
		return pushsvc.NewConsoleGateway(loggerParam.Logger)
	}
	gw, err := pushsvc.NewFCMGateway(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up push gateway: %v", err), err)
	}
	return gw
}

func newPushService(
	conf *core.Config,
	gateway pushsvc.Gateway,
	deviceSvc *device.Service,
	metrics *metricsvc.Collector,
	loggerParam PushLoggerParam,
) *pushsvc.Service {
	svc := pushsvc.NewService(gateway, deviceSvc, loggerParam.Logger, conf)
	svc.SetObserver(metrics)
	return svc
}

func newRealtime(conf *core.Config, logger core.Logger) Realtime {
	hub := realtimesvc.NewHub(conf, logger)
	if conf.Realtime.RedisAddress == "" {
		return Realtime{Hub: hub}
	}
	relay := realtimesvc.NewRedisRelay(realtimesvc.NewRedisClient(conf), conf, logger)
	hub.SetRelay(relay)
	return Realtime{Hub: hub, Relay: relay}
}

func newMetrics(hub *realtimesvc.Hub) *metricsvc.Collector {
	return metricsvc.New(func() float64 {
		_, sessions := hub.Stats()
		return float64(sessions)
	})
}

func newEngine(
	conf *core.Config,
	hub *realtimesvc.Hub,
	deviceSvc *device.Service,
	pushSvc *pushsvc.Service,
	metrics *metricsvc.Collector,
	loggerParam PushLoggerParam,
) *notification.Engine {
	return notification.NewEngine(notification.EngineDeps{
		Sockets:     hub,
		Tokens:      deviceSvc,
		Pusher:      pushSvc,
		Observer:    metrics,
		Logger:      loggerParam.Logger,
		CallTimeout: conf.Push.CallTimeout,
	})
}

func newDispatcher(conf *core.Config, engine *notification.Engine, loggerParam PushLoggerParam) *notification.AsyncDispatcher {
	return notification.NewAsyncDispatcher(engine, conf.Notification, loggerParam.Logger)
}

func asDispatcher(d *notification.AsyncDispatcher) notification.Dispatcher {
	return d
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		ChatSvc:    p.ChatSvc,
		DeviceSvc:  p.DeviceSvc,
		PushSvc:    p.PushSvc,
		Hub:        p.Hub,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newPushLogger, dig.Name("pushLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(device.NewService))
	must(c.Provide(newPushGateway))
	must(c.Provide(newRealtime))
	must(c.Provide(newMetrics))
	must(c.Provide(newPushService))
	must(c.Provide(newEngine))
	must(c.Provide(newDispatcher))
	must(c.Provide(asDispatcher))
	must(c.Provide(chat.NewService))
	must(c.Provide(newTokenCleanup))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
