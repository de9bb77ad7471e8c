package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/auth"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/cache"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/catalog"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/config"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/db"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/events"
	internalhttp "github.com/yuditv/gerenciadorprofinal-sub001/internal/http"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/ledger"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/logger"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/pricing"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/services"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx := context.Background()
	pg, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		lg.Fatal("db connect failed", zap.Error(err))
	}
	defer pg.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var catalogCache cache.Store = cache.NewMemory()
	if cfg.Catalog.RedisAddr != "" {
		rc := cache.NewRedis(cfg.Catalog.RedisAddr, cfg.Catalog.RedisPassword, cfg.Catalog.RedisDB, "smm:")
		defer rc.Close()
		catalogCache = rc
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg)
		defer kp.Close()
		publisher = kp
	}

	providerClient := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
		lg.Named("provider"),
		m,
	)
	orders := store.New(pg.DBGetter)
	credits := ledger.New(pg.DBGetter)
	cat := catalog.New(providerClient, catalogCache, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second, lg.Named("catalog"), m)

	saga := &services.OrderSaga{
		Orders:   orders,
		Ledger:   credits,
		Provider: providerClient,
		Catalog:  cat,
		Pricing:  pricing.NewCalculator(cfg.Pricing.MarkupPercent),
		Tx:       pg.Transactor,
		Events:   publisher,
		Metrics:  m,
		Log:      lg.Named("saga"),
	}
	reconciler := &services.StatusReconciler{
		Orders:         orders,
		Provider:       providerClient,
		LedgerCurrency: cfg.Pricing.Currency,
		Log:            lg.Named("reconciler"),
	}
	refills := &services.RefillCancelManager{
		Orders:   orders,
		Provider: providerClient,
		Events:   publisher,
		Metrics:  m,
		Log:      lg.Named("refills"),
	}

	identity := auth.Identity{Header: cfg.Auth.UserHeader}
	if cfg.Auth.JWTSecret != "" {
		identity.JWT = &auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Leeway: 30 * time.Second}
	}

	h := internalhttp.NewHandler(saga, reconciler, refills, lg.Named("http"))
	srv := internalhttp.NewServer(h, internalhttp.ServerOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Identity:    identity,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:         lg.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Provider calls can take up to the provider timeout; let in-flight
	// sagas finish.
	grace := time.Duration(cfg.Provider.TimeoutSeconds)*time.Second + 5*time.Second
	ctxShutdown, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}
