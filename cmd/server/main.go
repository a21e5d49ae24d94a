package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pull-proxy/internal/platform/config"
	"pull-proxy/internal/platform/logger"
	"pull-proxy/internal/platform/metrics"
	"pull-proxy/internal/player"
	"pull-proxy/internal/proxy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	rateLimitRPM := config.GetEnvInt("RATE_LIMIT_RPM", 300)

	opt := proxy.Options{
		EnableRTSP:         config.GetEnvBool("ENABLE_RTSP", true),
		EnableRTMP:         config.GetEnvBool("ENABLE_RTMP", true),
		RTSPDirectProxy:    config.GetEnvBool("RTSP_DIRECT_PROXY", false),
		RTMPDirectProxy:    config.GetEnvBool("RTMP_DIRECT_PROXY", false),
		ResetWhenReplay:    config.GetEnvBool("RESET_WHEN_REPLAY", true),
		KeepReplayProgress: config.GetEnvBool("KEEP_REPLAY_PROGRESS", false),
		RetryCount:         config.GetEnvInt("PLAY_RETRY_COUNT", -1),
		DelayMin:           time.Duration(config.GetEnvInt("RECONNECT_DELAY_MIN_SECS", 2)) * time.Second,
		DelayMax:           time.Duration(config.GetEnvInt("RECONNECT_DELAY_MAX_SECS", 60)) * time.Second,
		DelayStep:          time.Duration(config.GetEnvInt("RECONNECT_DELAY_STEP_SECS", 3)) * time.Second,
	}

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	deps := proxy.Deps{
		NewPlayer:      player.NewFactory(nil),
		NewMuxer:       player.NewMuxer,
		NewMediaSource: player.NewMediaSource,
		Log:            logger.WithComponent(log, "proxy"),
		Metrics:        met,
	}
	reg := proxy.NewRegistry(opt, deps)
	h := proxy.NewHandler(reg, logger.WithComponent(log, "http"), met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(httprate.LimitByIP(rateLimitRPM, time.Minute))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveProxies(reg.ActiveCount()) }).ServeHTTP(w, req)
	})
	r.Route("/proxies", func(r chi.Router) {
		r.Post("/", h.CreateProxy)
		r.Get("/", h.ListProxies)
		r.Get("/{key}", h.GetProxy)
		r.Delete("/{key}", h.DeleteProxy)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"retry_count", opt.RetryCount,
		"keep_replay_progress", opt.KeepReplayProgress,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	reg.CloseAll()
	log.Info("server stopped")
}
