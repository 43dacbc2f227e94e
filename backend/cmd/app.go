package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/blackboard/backend/config"
	"github.com/adwski/blackboard/backend/room"
	"github.com/adwski/blackboard/backend/server/cors"
	httpServer "github.com/adwski/blackboard/backend/server/http"
	websocketServer "github.com/adwski/blackboard/backend/server/websocket"
	"github.com/adwski/blackboard/backend/service"
	store "github.com/adwski/blackboard/backend/storage/memory"
	sw "github.com/adwski/blackboard/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(room.Config{HistoryLimit: cfg.HistoryLimit}),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
		RoomTTL:   cfg.RoomTTL,
	})
	origins := cors.NewPolicy(cfg.AllowedOrigins, &logger)
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
		CheckOrigin:    origins.CheckOrigin,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		Websocket:   wsSrv,
		CORS:        origins.Handler,
		ListenAddr:  cfg.ListenAddr(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go svc.RunJanitor(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
