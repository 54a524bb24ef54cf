package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"linknet/internal/cache"
	connectionhandler "linknet/internal/connection/handler"
	connectionmetrics "linknet/internal/connection/metrics"
	connectionservice "linknet/internal/connection/service"
	connectionstore "linknet/internal/connection/store"
	memberhandler "linknet/internal/member/handler"
	memberservice "linknet/internal/member/service"
	memberstore "linknet/internal/member/store"
	"linknet/internal/netvalue"
	"linknet/internal/notify"
	notifykafka "linknet/internal/notify/kafka"
	"linknet/internal/platform/config"
	"linknet/internal/platform/httpserver"
	"linknet/internal/platform/logger"
	platformredis "linknet/internal/platform/redis"
	httptransport "linknet/internal/transport/http"
	"linknet/pkg/domain"
	"linknet/pkg/platform/keylock"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err.Error())
		os.Exit(1)
	}

	var (
		stores     connectionservice.Stores
		txRun      connectionservice.Tx
		memberOpts []memberservice.Option
	)
	if cfg.DB.DSN != "" {
		db, err := sql.Open("postgres", cfg.DB.DSN)
		if err != nil {
			log.Error("database setup failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database ping failed", "error", err.Error())
			os.Exit(1)
		}
		stores = connectionservice.Stores{
			Members:     memberstore.NewPostgresStore(db),
			Connections: connectionstore.NewPostgresStore(db),
		}
		txRun = newConnectionPostgresTx(db, stores)
	} else {
		log.Warn("no database configured, using in-memory stores")
		stores = connectionservice.Stores{
			Members:     memberstore.NewInMemoryStore(),
			Connections: connectionstore.NewInMemoryStore(),
		}
		// Profile edits and connection transitions share the lock registry so
		// neither can interleave with the other's read-then-write.
		locks := keylock.NewRegistry[domain.MemberID]()
		txRun = connectionservice.NewMemberLockTxWithRegistry(stores, locks)
		memberOpts = append(memberOpts, memberservice.WithMemberLocks(locks))
	}

	notifier := notify.NewChannelNotifier(cfg.Domain.NotifierBuffer)
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if redisClient != nil {
		sinks = append(sinks, notify.NewRedisSink(redisClient.Client))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := notifykafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka setup failed", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	worker := notify.NewWorker(notifier.Events(), log, sinks...)

	var accel *cache.Cache
	if redisClient != nil {
		accel = cache.New(redisClient.Client)
	}

	coordinator := connectionservice.New(
		stores,
		txRun,
		netvalue.NewAggregator(cfg.Domain.ValuePerConnection),
		notifier,
		log,
		connectionservice.WithCache(accel, cfg.Domain.ProfileCacheTTL),
		connectionservice.WithMetrics(connectionmetrics.New()),
	)
	members := memberservice.NewService(stores.Members, memberOpts...)

	router := httptransport.NewRouter(log,
		connectionhandler.New(coordinator, log),
		memberhandler.New(members, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("starting linknet", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}
