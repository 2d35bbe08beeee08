package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/counsel-rag/internal/adapters/http"
	"github.com/kirillkom/counsel-rag/internal/bootstrap"
	"github.com/kirillkom/counsel-rag/internal/config"
	"github.com/kirillkom/counsel-rag/internal/observability/logging"
	"github.com/kirillkom/counsel-rag/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.RouterOptions{
		Uploader:      app.UploadUC,
		Remover:       app.RemoveUC,
		Streamer:      app.StreamUC,
		Titler:        app.TitleUC,
		Cases:         app.Cases,
		Documents:     app.Documents,
		Conversations: app.Conversations,
		Metrics:       metrics.NewHTTPServerMetrics("api"),
		Log:           logger,
		MaxBodyBytes:  cfg.MaxUploadBytes(),
		RateRPS:       cfg.RateLimitRPS,
		RateBurst:     cfg.RateLimitBurst,
		MaxInFlight:   cfg.MaxInFlight,
	})

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router.Handler(),
		ReadTimeout: 30 * time.Second,
		// Answer streams stay open for the duration of generation; only
		// idle and read sides are bounded here.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
