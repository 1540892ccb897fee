package main

import (
	"context"
	"database/sql"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dineflow/common/database"
	"dineflow/common/logger"
	"dineflow/common/mqtt"
	rediscommon "dineflow/common/redis"
	"dineflow/internal/access"
	"dineflow/internal/audit"
	"dineflow/internal/config"
	"dineflow/internal/gateway"
	httpapi "dineflow/internal/http"
	"dineflow/internal/idempotency"
	"dineflow/internal/notify"
	"dineflow/internal/repository"
	"dineflow/internal/service"
	"dineflow/internal/store"
	"dineflow/internal/tenant"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dineflow-orders")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		log.Fatal("Redis is required for idempotency locks", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	kv := store.NewRedisKV(redisClient)

	var db *sql.DB
	var txStore repository.TxStore
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			txStore = repository.NewPostgresStore(db)
			log.Info("DB enabled for dineflow-orders")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}

	var mem *repository.MemoryStore
	if txStore == nil {
		mem = repository.NewMemoryStore()
		txStore = mem
	}
	resolver := tenant.NewResolver(cfg.JWTSecret, repository.NewMembershipResolver(txStore), access.PermissionsFor)
	if mem != nil {
		if err := seedDevData(context.Background(), mem, resolver, log); err != nil {
			log.Warn("Failed to seed dev data", zap.Error(err))
		}
	}
	recorder := audit.NewRecorder(repository.NewAuditLogRepository(txStore), log)

	gw := gateway.New(txStore,
		gateway.Access(log),
		gateway.Scope(),
		recorder.Interceptor(),
	)

	coordinator := idempotency.NewCoordinator(kv, idempotency.Config{
		LockTTL:    cfg.Idem.LockTTL,
		ResultTTL:  cfg.Idem.ResultTTL,
		RetryDelay: cfg.Idem.RetryDelay,
		MaxRetries: cfg.Idem.MaxRetries,
	}, log)

	checks := map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return rediscommon.Ping(ctx, redisClient) },
	}
	if db != nil {
		checks["database"] = db.PingContext
	}

	notifiers, closeNotifiers := buildNotifiers(cfg, redisClient, checks, log)
	dispatcher := notify.NewDispatcher(log, notifiers...)

	orders := service.NewOrderService(gw, coordinator, dispatcher, service.OrderServiceConfig{
		TaxRate:                cfg.Orders.TaxRate,
		OrderNumberMaxAttempts: cfg.Orders.OrderNumberMaxAttempts,
	}, log)
	memberships := service.NewMembershipService(gw, log)

	router := httpapi.NewRouter(log)
	router.RegisterOrderRoutes(httpapi.NewOrderHandler(orders, recorder, log), resolver)
	router.RegisterMembershipRoutes(httpapi.NewMembershipHandler(memberships, log), resolver)
	router.RegisterHealthRoutes(checks)

	srv := service.NewServer(cfg.HTTP.Addr, httpapi.RequestLogger(log, router), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}

	dispatcher.Close()
	closeNotifiers()
	_ = rediscommon.Close(redisClient)
	if db != nil {
		_ = database.Close(db)
	}
}

// buildNotifiers connects every enabled transport and registers a health check for
// each broker connection. A transport that fails to connect is skipped with a warning.
func buildNotifiers(cfg *config.Config, redisClient *rediscommon.Client, checks map[string]httpapi.HealthCheck, log *zap.Logger) ([]notify.Notifier, func()) {
	var notifiers []notify.Notifier
	var closers []func()

	if cfg.Notify.RedisStream != "" {
		notifiers = append(notifiers, notify.NewStreamNotifier(redisClient, cfg.Notify.RedisStream))
	}

	if cfg.Notify.MQTTEnabled {
		client, err := mqtt.NewClient(&cfg.Notify.MQTT)
		if err != nil {
			log.Warn("MQTT notifications disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, notify.NewMQTTNotifier(client, cfg.Notify.TopicPrefix, client.QoS()))
			closers = append(closers, client.Disconnect)
			checks["mqtt"] = func(context.Context) error {
				if !client.IsConnected() {
					return errors.New("mqtt broker not connected")
				}
				return nil
			}
		}
	}

	if cfg.Notify.AMQPEnabled {
		conn, err := amqp.Dial(cfg.Notify.AMQP.URL)
		if err != nil {
			log.Warn("AMQP notifications disabled", zap.Error(err))
		} else if ch, err := conn.Channel(); err != nil {
			log.Warn("AMQP notifications disabled", zap.Error(err))
			_ = conn.Close()
		} else if err := notify.DeclareExchange(ch, cfg.Notify.AMQP.Exchange); err != nil {
			log.Warn("AMQP notifications disabled", zap.Error(err))
			_ = conn.Close()
		} else {
			notifiers = append(notifiers, notify.NewAMQPNotifier(ch, cfg.Notify.AMQP.Exchange))
			checks["amqp"] = func(context.Context) error {
				if conn.IsClosed() {
					return errors.New("amqp connection closed")
				}
				return nil
			}
			closers = append(closers, func() {
				_ = ch.Close()
				_ = conn.Close()
			})
		}
	}

	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}

	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	log.Info("Order notifications configured", zap.Strings("transports", names))

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}
}
