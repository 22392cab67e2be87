package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accura-health/terminology/pkg/authflow"
	"github.com/accura-health/terminology/pkg/common/config"
	"github.com/accura-health/terminology/pkg/common/database"
	"github.com/accura-health/terminology/pkg/common/httpclient"
	"github.com/accura-health/terminology/pkg/common/kafka"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/diagnosis"
	"github.com/accura-health/terminology/pkg/middleware"
	"github.com/accura-health/terminology/pkg/observability/metrics"
	"github.com/accura-health/terminology/pkg/session"
	"github.com/accura-health/terminology/pkg/terminology"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	if cfg.SessionSecret == "" {
		logger.Log.Fatal("SESSION_SECRET must be set")
	}
	if cfg.TokenSecret == "" {
		logger.Log.Fatal("TOKEN_SECRET must be set")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := terminology.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate terminology tables")
	}

	sessions := session.NewRedisStore(database.GetRedis(), cfg.SessionTTL)
	cookies := session.NewCookieManager(cfg.SessionSecret, cfg.SessionTTL)

	verifier := authflow.NewIdentityVerifier(cfg.TokenSecret)
	engine := authflow.NewEngine(authflow.Config{
		ProviderBaseURL:    cfg.ProviderBaseURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		LoginRedirectURL:   cfg.LoginRedirectURL,
		ConsentRedirectURL: cfg.ConsentRedirectURL,
		ExchangeTimeout:    cfg.ExchangeTimeout,
	}, sessions, verifier, httpclient.New(cfg.ExchangeTimeout))
	authHandler := authflow.NewHandler(engine, sessions, cfg.DashboardURL, cfg.ConsentSuccessURL)

	termService := terminology.NewService(repo)
	termHandler := terminology.NewHandler(termService)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaDiagnosisTopic)
	sink := diagnosis.NewHTTPSink(cfg.SinkEndpoint, httpclient.New(cfg.SinkTimeout))
	diagService := diagnosis.NewService(repo, sink, producer)
	diagHandler := diagnosis.NewHandler(diagService, sessions)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(cookies.Middleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	authHandler.Register(router)
	termHandler.Register(router)
	diagHandler.Register(router)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Terminology service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start terminology service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down terminology service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("terminology service forced to shutdown")
	}
	if err := producer.Close(); err != nil {
		logger.Log.WithError(err).Error("failed to close event producer")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	logger.Log.Info("Terminology service stopped")
}
