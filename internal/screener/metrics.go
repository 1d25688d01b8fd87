package screener

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
)

var scheduledFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_scheduled_failures",
	Help: "Number of failed scheduled runs",
}, []string{"loop"})

// registerMetricsServer serves /metrics on metrics.addr for the lifetime of
// the app. An empty address disables it.
func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	if cfg.Metrics.Addr == "" {
		return
	}

	logger = logger.Named("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lcfg net.ListenConfig
			li, err := lcfg.Listen(ctx, "tcp", cfg.Metrics.Addr)
			if err != nil {
				return err
			}
			logger.Info("Serving metrics", zap.String("addr", li.Addr().String()))
			go func() {
				if err := srv.Serve(li); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
