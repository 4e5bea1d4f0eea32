package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/config"
	"github.com/sipadmin/funds-engine/internal/jobs"
	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/logger"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
	"github.com/sipadmin/funds-engine/internal/service"
	httptransport "github.com/sipadmin/funds-engine/internal/transport/http"
)

func main() {
	// 1. load config
	path := os.Getenv("FUNDS_CONFIG")
	if path == "" {
		path = "internal/config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	// 6. repo, ledger & services
	repository := repo.NewRepository(gdb, rdb, kw, log).WithBalanceTTL(cfg.Redis.BalanceTTL)
	writer := ledger.NewWriter(repository, log)
	draws := service.NewDrawService(repository, writer, log)
	handler := httptransport.NewHandler(
		draws,
		service.NewProfitService(repository, writer, cfg.Profit, log),
		service.NewWalletService(repository, writer, log),
		service.NewPaymentService(repository, writer, log),
		service.NewWithdrawalService(repository, writer, log),
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. scheduled draws
	if cfg.Draw.AutoExecute {
		sched := jobs.NewScheduler(draws, cfg.Draw.Schedule, log)
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	// 8. serve
	router := httptransport.NewRouter(handler, cfg.RateLimit, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("funds-server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("funds-server stopped")
}
