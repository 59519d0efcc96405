package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/yoockh/callbridge/config"
	"github.com/yoockh/callbridge/internal/logger"
	"github.com/yoockh/callbridge/internal/mockbackend"
	"github.com/yoockh/callbridge/internal/providers/stt"
	"github.com/yoockh/callbridge/internal/storage"
)

func main() {
	log := logger.New()
	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Fatal("env")
	}
	cfg, err := config.LoadMockBackend()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gcp := []option.ClientOption{option.WithUserAgent("callbridge-mock-backend")}
	if cfg.GoogleCredentialsFile != "" {
		gcp = append(gcp, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.GoogleCredentialsFile))
	}

	var fin *mockbackend.Finalizer
	if cfg.GCSBucket != "" || cfg.STTEnabled {
		fin = &mockbackend.Finalizer{Language: cfg.STTLanguage, Logger: log}
	}
	if cfg.GCSBucket != "" {
		up, err := storage.NewGCSUploader(ctx, cfg.GCSBucket, cfg.GCSPrefix, gcp...)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer up.Close()
		fin.Uploader = up
		log.WithField("bucket", cfg.GCSBucket).Info("recordings will be uploaded")
	}
	if cfg.STTEnabled {
		sp, err := stt.NewGoogleSpeech(ctx, gcp...)
		if err != nil {
			log.WithError(err).Fatal("Speech init error")
		}
		defer sp.Close()
		fin.Transcriber = sp
		log.WithField("language", cfg.STTLanguage).Info("recordings will be transcribed")
	}

	srv := mockbackend.NewServer(mockbackend.Options{
		RecordingsDir:  cfg.RecordingsDir,
		RecordFormat:   cfg.RecordFormat,
		EchoSampleRate: cfg.EchoSampleRate,
		Finalizer:      fin,
		Logger:         log,
	})
	g, health := mockbackend.NewGRPCServer(srv)

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		log.WithError(err).Fatal("listen")
	}
	go func() {
		log.WithFields(logrus.Fields{
			"port":       cfg.Port,
			"recordings": cfg.RecordingsDir,
			"echo_rate":  cfg.EchoSampleRate,
		}).Info("mock backend listening")
		if err := g.Serve(lis); err != nil {
			log.WithError(err).Error("grpc serve")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	health.Shutdown()
	g.GracefulStop()
	srv.Wait()
}
