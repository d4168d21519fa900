package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"

	"donations/internal/config"
)

const serviceName = "donations-service"

// New returns a JSON logger on stdout, or a Loki-backed logger when a Loki
// URL is configured. The returned stop function flushes pending log lines.
func New(cfg config.LogsConfig) (*slog.Logger, func()) {
	if cfg.LokiURL == "" {
		return localLogger(), func() {}
	}

	logger, stop, err := remoteLogger(cfg.LokiURL)
	if err != nil {
		fallback := localLogger()
		fallback.Error("failed to initialize loki logger, using stdout", "error", err)
		return fallback, func() {}
	}
	return logger, stop
}

func localLogger() *slog.Logger {
	return slog.New(&ContextHandler{Handler: slog.NewJSONHandler(os.Stdout, nil)}).With("service", serviceName)
}

func remoteLogger(url string) (*slog.Logger, func(), error) {
	lokiConfig, err := loki.NewDefaultConfig(url)
	if err != nil {
		return nil, nil, err
	}
	client, err := loki.New(lokiConfig)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slogloki.Option{
		Level:  slog.LevelInfo,
		Client: client,
		AttrFromContext: []func(ctx context.Context) []slog.Attr{
			attrsFromContext,
		},
	}.NewLokiHandler()).With("service", serviceName)

	return logger, client.Stop, nil
}
