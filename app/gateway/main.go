package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callbridge/config"
	"github.com/yoockh/callbridge/internal/api/handlers"
	"github.com/yoockh/callbridge/internal/api/middleware"
	"github.com/yoockh/callbridge/internal/api/routes"
	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/backend"
	"github.com/yoockh/callbridge/internal/cache"
	"github.com/yoockh/callbridge/internal/gateway"
	"github.com/yoockh/callbridge/internal/logger"
	"github.com/yoockh/callbridge/internal/observe"
	mongorepo "github.com/yoockh/callbridge/internal/repositories/mongo"
	"github.com/yoockh/callbridge/internal/services"
)

var version = "dev"

func main() {
	log := logger.New()
	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Fatal("env")
	}
	cfg, err := config.LoadGateway()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := gateway.NewTokenVerifier(cfg.AuthMode, cfg.AccessToken, cfg.AccessTokenHash)
	if err != nil {
		log.WithError(err).Fatal("invalid auth configuration")
	}
	if cfg.AuthMode == gateway.AuthNone {
		log.Warn("AUTH_MODE=none: calls are accepted without a token")
	}
	encoder, err := gateway.NewEncoder(cfg.ClientSchema)
	if err != nil {
		log.WithError(err).Fatal("invalid client schema")
	}

	var (
		metrics        *observe.Metrics
		metricsHandler http.Handler
		provider       *observe.Provider
	)
	if cfg.MetricsEnabled {
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "callbridge-gateway",
			ServiceVersion: version,
			Registry:       prometheus.NewRegistry(),
		})
		if err != nil {
			log.WithError(err).Fatal("metrics init")
		}
		metrics = provider.Metrics
		metricsHandler = provider.Handler()
	}

	dialer, err := backend.NewGRPCDialer(cfg.BackendAddr)
	if err != nil {
		log.WithError(err).Fatal("backend client")
	}
	defer dialer.Close()

	var mirror cache.Cache
	if cfg.RedisAddr != "" {
		if err := config.InitRedis(cfg.RedisAddr); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		defer config.RedisClient.Close()
		mirror = cache.NewRedisCache(config.RedisClient, "callbridge:")
		log.Info("Redis connected")
	}

	var callLogs services.CallLogService
	if cfg.MongoURI != "" {
		if err := config.InitMongo(cfg.MongoURI); err != nil {
			log.WithError(err).Fatal("MongoDB init error")
		}
		defer config.MongoClient.Disconnect(context.Background())
		if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
			log.WithError(err).Warn("MongoDB indexes")
		}
		db := config.MongoClient.Database(cfg.MongoDB)
		callLogs = services.NewCallLogService(mongorepo.NewCallRepo(db, config.CallsCollection))
		log.Info("MongoDB connected")
	}

	registry := services.NewCallRegistry(services.CallRegistryOptions{
		Mirror: mirror,
		Logs:   callLogs,
		Logger: log,
	})

	boot := gateway.NewBootstrapper(gateway.BootstrapConfig{
		PathPrefix:           cfg.CallPathPrefix,
		RequireCustomerPhone: cfg.RequireCustomerPhone,
		GenerateCallID:       cfg.GenerateCallID,
		DefaultEnv:           cfg.DefaultEnv,
		DefaultTypeCall:      cfg.DefaultTypeCall,
	}, verifier)

	callCtx, cancelCalls := context.WithCancelCause(context.Background())
	defer cancelCalls(nil)

	ws := handlers.NewCallWSHandler(handlers.CallWSOptions{
		Bootstrapper: boot,
		Dialer:       dialer,
		Call: gateway.CallConfig{
			Translator: gateway.Translator{
				Ingress:      cfg.Ingress,
				OutputRate:   cfg.OutputSampleRate,
				LegacyBinary: cfg.LegacyBinaryAudio,
			},
			Encoder:         encoder,
			BatchBytes:      audio.ThresholdFor(cfg.BufferDuration, cfg.OutputSampleRate, 2),
			ErrorCloseDelay: cfg.ErrorCloseDelay,
			BackendFormat:   audio.Format{SampleRate: cfg.BackendSampleRate, SampleWidthBits: 16, NumChannels: 1},
		},
		Registry:     registry,
		Metrics:      metrics,
		Logger:       log,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  callCtx,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, metrics))
	routes.RegisterRoutes(r, routes.Deps{
		Calls:          handlers.NewCallHandler(registry, callLogs, dialer),
		WS:             ws,
		CallPathPrefix: boot.PathPrefix(),
		Metrics:        metricsHandler,
		Admin: middleware.AdminAuthConfig{
			Secret:   cfg.AdminJWTSecret,
			Issuer:   cfg.AdminJWTIssuer,
			Audience: cfg.AdminJWTAudience,
		},
	})
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET is not set: /admin endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"backend": cfg.BackendAddr,
			"prefix":  boot.PathPrefix(),
			"batch":   audio.ThresholdFor(cfg.BufferDuration, cfg.OutputSampleRate, 2),
		}).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; calls are
	// stopped through the registry and their shared context.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	n := registry.StopAll(gateway.ErrShutdown)
	cancelCalls(gateway.ErrShutdown)
	if err := registry.Wait(shutdownCtx); err != nil {
		log.WithError(err).WithField("calls", registry.Len()).Warn("calls still open at shutdown")
	}
	registry.Close()
	log.WithField("stopped_calls", n).Info("calls drained")

	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics shutdown")
		}
	}
}
