package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"gatelog/internal/attendance"
	"gatelog/internal/attendance/classifier"
	attendancemetrics "gatelog/internal/attendance/metrics"
	"gatelog/internal/attendance/service"
	eventstore "gatelog/internal/attendance/store/event"
	"gatelog/internal/attendance/store/rollup"
	"gatelog/internal/audit"
	"gatelog/internal/platform/config"
	"gatelog/internal/platform/httpserver"
	"gatelog/internal/platform/logger"
	platformredis "gatelog/internal/platform/redis"
	"gatelog/internal/token"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres is the production store; without a database URL the process
	// runs on the in-memory store for local development.
	var events service.EventStore
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := eventstore.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		if err := audit.EnsureOutboxSchema(ctx, db); err != nil {
			log.Error("failed to ensure audit schema", "error", err)
			os.Exit(1)
		}
		events = eventstore.NewPostgres(db)
	} else {
		log.Warn("no database configured, using in-memory event store")
		events = eventstore.NewInMemory()
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(attendancemetrics.New()),
		service.WithDefaultPolicy(policyFromConfig(cfg.Policy, log)),
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithRollupCache(rollup.NewRedisCache(redisClient.Client)))
	}

	// Audit events go through the outbox when postgres is present; the Kafka
	// sink drains it in the background.
	if db != nil {
		opts = append(opts, service.WithAuditPublisher(audit.NewPublisher(audit.NewPostgresStore(db))))
		if cfg.KafkaBrokers != "" {
			kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers))
			if err != nil {
				log.Error("failed to create kafka client", "error", err)
				os.Exit(1)
			}
			defer kafkaClient.Close()
			if err := audit.EnsureTopic(ctx, kafkaClient, cfg.AuditTopic); err != nil {
				log.Error("failed to ensure audit topic", "error", err)
				os.Exit(1)
			}
			sink := audit.NewKafkaSink(db, kafkaClient, cfg.AuditTopic, log)
			go func() {
				if err := sink.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("audit sink stopped", "error", err)
				}
			}()
		}
	} else {
		opts = append(opts, service.WithAuditPublisher(audit.NewPublisher(audit.NewInMemoryStore())))
	}

	svc := attendance.NewService(events, opts...)
	jwtService := token.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	handler := attendance.NewHandler(svc, log, jwtService)

	router := chi.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting gatelog", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// policyFromConfig maps env-level threshold settings to a classifier policy.
func policyFromConfig(p config.PolicyConfig, log *slog.Logger) classifier.Policy {
	policy := classifier.DefaultPolicy()
	policy.ShortVisit = p.ShortVisit
	policy.MaxDailyEvents = p.MaxDailyEvents
	policy.GateOpenHour = p.GateOpenHour
	policy.GateCloseHour = p.GateCloseHour
	policy.FlagWeekends = p.FlagWeekends
	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			log.Warn("unknown timezone, falling back to UTC", "timezone", p.Timezone)
		} else {
			policy.Timezone = loc
		}
	}
	return policy
}
