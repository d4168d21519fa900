package metrics

import (
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"

	"donations/internal/config"
)

// Setup starts pushing metrics when a push URL is configured.
func Setup(cfg config.MetricsConfig, logger *slog.Logger) {
	if cfg.PushURL == "" {
		return
	}

	if err := metrics.InitPush(cfg.PushURL, cfg.PushInterval, `service="donations-service"`, true); err != nil {
		logger.Error("error initializing metrics push", "error", err)
	}
}

// Handler exposes all registered metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(c.Writer, true)
	}
}
