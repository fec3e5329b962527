package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/chat"
	"github.com/isqad/webinar-sfu/internal/config"
	"github.com/isqad/webinar-sfu/internal/recording"
	"github.com/isqad/webinar-sfu/internal/rtc"
	"github.com/isqad/webinar-sfu/internal/signaling"
)

// AppOptions is options of the application
type AppOptions struct {
	Env     config.Environment
	Address string

	Pool       *rtc.WorkerPool
	Registry   *rtc.Registry
	Gateway    *signaling.Gateway
	Recordings *recording.Tracker
	Chat       *chat.Service
	Auth       *Auth
}

// App serves the admin API, the signaling websocket and metrics on one
// listener.
type App struct {
	AppOptions
}

func New(options AppOptions) *App {
	return &App{options}
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()
	router := app.Router()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		app.Pool.Close()
		log.Info().Msg("all services are stopped")
		close(done)
	})

	// Shutdown the HTTP server
	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

func (app *App) initLogger() {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel

	if app.Env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

// Router is function for construct http router
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ws", app.Gateway.Handler())
	r.Method("GET", "/metrics", promhttp.Handler())
	r.Get("/healthz", app.healthHandler)

	r.With(app.Auth.Middleware()).Route("/api/v1", func(r chi.Router) {
		r.Post("/rooms", app.createRoomHandler)
		r.Get("/rooms/{id}/capabilities", app.routerCapabilitiesHandler)
		r.Get("/rooms/{id}/stats", app.roomStatsHandler)
		r.Delete("/rooms/{id}", app.deleteRoomHandler)

		r.Post("/rooms/{id}/recordings", app.startRecordingHandler)
		r.Get("/rooms/{id}/recordings", app.listRecordingsHandler)
		r.Delete("/recordings/{id}", app.stopRecordingHandler)
	})

	return r
}
