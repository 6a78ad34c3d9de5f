package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/masomo-chat/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-chat/apps/api/echo"
	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/notification"
	metricsvc "github.com/trezcool/masomo-chat/services/metrics"
	realtimesvc "github.com/trezcool/masomo-chat/services/realtime"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		sqlDB *sqlx.DB,
		validate *validator.Validate,
		translator ut.Translator,
		hub *realtimesvc.Hub,
		relay *realtimesvc.RedisRelay,
		metrics *metricsvc.Collector,
		dispatcher *notification.AsyncDispatcher,
		cleanup *dig_container.TokenCleanup,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q (%s)", conf.Build, conf))

		core.InitValidators(validate, translator)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if sqlDB == nil {
				return
			}
			if err := sqlDB.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", metrics.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Background Services

		dispatcher.Start()
		cleanup.Start()

		relayCtx, stopRelay := context.WithCancel(context.Background())
		defer stopRelay()
		if relay != nil {
			go func() {
				if err := relay.Run(relayCtx, hub.DeliverLocal); err != nil && relayCtx.Err() == nil {
					apiLogger.Error(fmt.Sprintf("realtime relay stopped: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}

			// deliver what the last requests queued
			if err := dispatcher.Stop(ctx); err != nil {
				apiLogger.Warn(fmt.Sprintf("notification dispatcher did not drain: %v", err), err)
			}
			stopRelay()
			hub.Close()

			select {
			case <-cleanup.Stop().Done():
			case <-ctx.Done():
				apiLogger.Warn("device token cleanup still running at shutdown")
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
