package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-gatepass/internal/api"
	"ms-gatepass/internal/audit"
	"ms-gatepass/internal/cache"
	"ms-gatepass/internal/config"
	"ms-gatepass/internal/issue"
	"ms-gatepass/internal/logger"
	"ms-gatepass/internal/payload"
	"ms-gatepass/internal/signer"
	"ms-gatepass/internal/store"
	"ms-gatepass/internal/validate"
)

func openDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", "open postgres: "+err.Error())
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "connect postgres: "+err.Error())
	}
	log.Info("DATABASE", "postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()

	sig, err := signer.New(cfg.Signing.Secret, cfg.Signing.PreviousSecrets...)
	if err != nil {
		log.Fatal("CONFIG", "TICKET_SIGNING_SECRET: "+err.Error())
	}

	bunDB := openDatabase(cfg, log)
	defer bunDB.Close()

	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		if err := store.Migrate(bunDB, dir); err != nil {
			log.Fatal("DATABASE", "migrations: "+err.Error())
		}
		log.Info("DATABASE", "migrations applied")
	}

	db := store.New(bunDB)

	codec := payload.NewCodec(sig, payload.WithMaxAge(cfg.Validation.PayloadMaxAge))
	issuer := issue.NewIssuer(codec)

	sinks := audit.MultiSink{db}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer := audit.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		defer producer.Close()
		sinks = append(sinks, producer)
		log.Info("KAFKA", "audit events streaming to "+cfg.Kafka.AuditTopic)
	}

	engine := validate.NewEngine(codec, db,
		validate.WithEventGrace(cfg.Validation.EventGrace),
		validate.WithAudit(sinks),
		validate.WithLogger(log),
	)

	var statusCache *cache.RedisStatusCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn("REDIS", "status cache unavailable: "+err.Error())
		} else {
			statusCache = cache.NewRedisStatusCache(client)
			defer client.Close()
			log.Info("REDIS", "status cache connected")
		}
	}

	handler := api.NewHandler(issuer, engine, db, log)
	if statusCache != nil {
		handler.Cache = statusCache
	}

	r := chi.NewRouter()
	r.Route("/ticket", func(r chi.Router) {
		r.Post("/issue", handler.IssueTicket)
		r.Post("/validate", handler.ValidateTicket)
		r.Get("/{ticketID}/qr", handler.TicketQR)
		r.Get("/{ticketID}/status", handler.TicketStatus)
		r.Get("/{ticketID}/history", handler.TicketHistory)
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "gatekeeper listening on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "gatekeeper shutdown complete")
}
