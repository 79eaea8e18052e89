package internal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hoyn/internal/controllers"
	"hoyn/internal/persistence/interfaces"
	"hoyn/internal/providers"
	"hoyn/internal/ratelimit"
	"hoyn/internal/services"
	"hoyn/internal/structures"
)

type App struct {
	WebServer *http.Server
}

// NewHandler assembles the API mux behind the metrics middleware plus the infrastructure endpoints.
func NewHandler(router providers.RouterProviderInterface, healthController *controllers.HealthController, conf *structures.Config, metrics providers.MetricsProviderInterface) http.Handler {
	apiMux := http.NewServeMux()
	for _, route := range router.GetRoutes() {
		apiMux.Handle(route.Url, route.Handler)
	}
	instrumentedAPI := providers.MetricsMiddleware(metrics, apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthController.Health)
	if conf.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", instrumentedAPI)
	return mux
}

func registerGauges(metrics providers.MetricsProviderInterface, stats services.ScanStatisticServiceInterface, streams *controllers.ConversationController, limiter ratelimit.Limiter) {
	metrics.RegisterGauge("hoyn_scan_buffer_size", "Scan events waiting for aggregation", func() float64 {
		return float64(stats.GetBufferSize())
	})
	metrics.RegisterGauge("hoyn_active_streams", "Open conversation event streams", func() float64 {
		return float64(streams.ActiveStreams())
	})
	if sized, ok := limiter.(interface{ Len() int }); ok {
		metrics.RegisterGauge("hoyn_rate_limit_buckets", "Actors tracked by the message rate limiter", func() float64 {
			return float64(sized.Len())
		})
	}
}

func NewApp(
	router providers.RouterProviderInterface,
	healthController *controllers.HealthController,
	conversationController *controllers.ConversationController,
	scheduler interfaces.SchedulerInterface,
	stats services.ScanStatisticServiceInterface,
	limiter ratelimit.Limiter,
	conf *structures.Config,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
) (*App, error) {
	registerGauges(metrics, stats, conversationController, limiter)

	logger.Infof(providers.TypeApp, "Starting %s", conf.AppName)
	err := scheduler.Restore()
	if err != nil {
		logger.Errorf(providers.TypeApp, "Restore error: %s", err)
	}

	// streams hold their request open; they end when the base context is cancelled
	baseCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	app := &App{
		WebServer: &http.Server{
			Addr:         conf.WebServer.Host + ":" + strconv.Itoa(conf.WebServer.Port),
			Handler:      NewHandler(router, healthController, conf, metrics),
			BaseContext:  func(net.Listener) context.Context { return baseCtx },
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	app.WebServer.RegisterOnShutdown(stopStreams)

	scheduler.Init()

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof(providers.TypeApp, "Listening HTTP clients on %s:%d", conf.WebServer.Host, conf.WebServer.Port)
		if err := app.WebServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Infof(providers.TypeApp, "Shutdown signal received")
	case err := <-serverErr:
		scheduler.Stop()
		return nil, fmt.Errorf("server error: %w", err)
	}

	scheduler.Stop()

	timeout := conf.WebServer.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = app.WebServer.Shutdown(ctx); err != nil {
		logger.Errorf(providers.TypeApp, "Shutdown error: %s", err)
	}
	err = scheduler.Persist()
	if err != nil {
		return nil, err
	}
	logger.Infof(providers.TypeApp, "gracefully stopped")
	return app, nil
}
