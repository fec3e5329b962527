package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/webinar-sfu/internal/api"
	"github.com/isqad/webinar-sfu/internal/chat"
	"github.com/isqad/webinar-sfu/internal/config"
	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/recording"
	"github.com/isqad/webinar-sfu/internal/rtc"
	"github.com/isqad/webinar-sfu/internal/signaling"

	_ "github.com/jackc/pgx/v4/stdlib"
)

func main() {
	app := &cli.App{
		Name:        "webinar-sfu",
		Usage:       "Webinar signaling and media orchestration server",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':80' (default value) for listen on 0.0.0.0:80",
				Value: ":80",
			},
		},
		Action: startServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startServer(c *cli.Context) error {
	cfg := config.Load()
	cfg.Env = config.Environment(c.String("env"))
	cfg.Address = c.String("address")

	if err := rtc.ValidateSimulcastBounds(cfg.Simulcast.Layers, cfg.Simulcast.MaxBitrate, cfg.Simulcast.MinBitrate); err != nil {
		return err
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err = db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	pool, err := rtc.NewWorkerPool(cfg.Engine.NumWorkers, func() (engine.Handle, error) {
		return engine.NewWorkerProcess(engine.Options{
			Bin:        cfg.Engine.Bin,
			LogLevel:   cfg.Engine.LogLevel,
			RTCMinPort: cfg.Engine.RTCMinPort,
			RTCMaxPort: cfg.Engine.RTCMaxPort,
		})
	})
	if err != nil {
		return err
	}

	registry := rtc.NewRegistry(pool, cfg.Room.MaxParticipants)

	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	go registry.StartJanitor(janitorCtx, cfg.Room.IdleTimeout)

	chatService := chat.NewService(chat.NewRingHistory(0), chat.NewRedisBus(rdb))
	recordings := recording.NewTracker(recording.NewDBStore(db), recording.NewNatsNotifier(nc), "/var/lib/webinar-sfu/recordings")
	gateway := signaling.New(registry, chatService, cfg.Engine.ListenIP, cfg.Engine.AnnouncedIP)

	auth := api.NewAuth(cfg.AuthServiceAddr, func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Msg("authentication failed")
		w.WriteHeader(http.StatusUnauthorized)
	})

	srv := api.New(api.AppOptions{
		Env:        cfg.Env,
		Address:    cfg.Address,
		Pool:       pool,
		Registry:   registry,
		Gateway:    gateway,
		Recordings: recordings,
		Chat:       chatService,
		Auth:       auth,
	})

	return srv.Start()
}
