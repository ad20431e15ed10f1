package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/zlog"

	eventapi "github.com/house-cat/echo-notifications/internal/api/handlers/event"
	"github.com/house-cat/echo-notifications/internal/api/handlers/notification"
	"github.com/house-cat/echo-notifications/internal/api/handlers/remote"
	"github.com/house-cat/echo-notifications/internal/api/router"
	"github.com/house-cat/echo-notifications/internal/api/server"
	"github.com/house-cat/echo-notifications/internal/attribute"
	"github.com/house-cat/echo-notifications/internal/cache"
	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/foreign"
	"github.com/house-cat/echo-notifications/internal/model"
	eventmsg "github.com/house-cat/echo-notifications/internal/rabbitmq/handlers/event"
	"github.com/house-cat/echo-notifications/internal/rabbitmq/queue"
	"github.com/house-cat/echo-notifications/internal/repository/gateway"
	notifrepo "github.com/house-cat/echo-notifications/internal/repository/notification"
	"github.com/house-cat/echo-notifications/internal/repository/unreadwikis"
	userrepo "github.com/house-cat/echo-notifications/internal/repository/user"
	"github.com/house-cat/echo-notifications/internal/service/dispatch"
	"github.com/house-cat/echo-notifications/internal/service/notifuser"
	"github.com/house-cat/echo-notifications/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	q, err := queue.NewEventQueue(ch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create event queue")
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	countsCache := cache.New(rdb)
	gw := gateway.New(db)
	notifications := notifrepo.NewRepository(db)
	unreadIndex := unreadwikis.NewRepository(db)
	users := userrepo.NewRepository(db)

	attributes := attribute.NewManager(cfg.Echo.Notifications, cfg.Echo.Categories)
	foreignClient := foreign.NewClient(cfg.Foreign)

	aggCfg := notifuser.Config{
		WikiID:           cfg.Echo.WikiID,
		CrossWikiEnabled: cfg.Echo.CrossWikiEnabled,
		MaxUpdateCount:   cfg.Echo.MaxUpdateCount,
		TrustMode:        cfg.Echo.ParsedTrustMode(),
		CacheVersion:     cfg.Echo.CacheVersion,
		ReadOnly:         func() bool { return cfg.Echo.ReadOnly },
	}

	factory := func(u model.User) (*notifuser.NotifUser, error) {
		return notifuser.New(
			u,
			countsCache,
			gw,
			notifications,
			attributes,
			unreadIndex,
			foreign.NewNotifications(unreadIndex, u, cfg.Echo.WikiID),
			foreignClient,
			aggCfg,
		)
	}

	dispatchSvc := dispatch.NewService(notifications, attributes, func(u model.User) (dispatch.Aggregator, error) {
		return factory(u)
	})
	messageHandler := eventmsg.NewHandler(dispatchSvc)
	dispatcher := worker.NewDispatcher(q, messageHandler)

	go dispatcher.Run(ctx, cfg.Retry, cfg.Workers.Count)

	notifHandler := notification.NewHandler(users, factory, val)
	eventHandler := eventapi.NewHandler(q, users, val, cfg.Retry)
	remoteHandler := remote.NewHandler(users, factory)

	r := router.New(notifHandler, eventHandler, remoteHandler, router.Config{
		RemoteAPIPath: cfg.Foreign.APIPath,
	})
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master DB")
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave DB")
		}
	}

	if err := rdb.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close redis client")
	}

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}
	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
