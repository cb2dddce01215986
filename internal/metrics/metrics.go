// Package metrics builds the bot's prometheus registry and serves it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "secubot"

// Commands counts handled chat commands by name and outcome.
var Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "commands_total",
	Help:      "Chat commands handled, by command and result.",
}, []string{"command", "result"})

// NewRegistry registers the default process collectors, the bot-wide
// collectors and extra.
func NewRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}))
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(Commands)
	registry.MustRegister(extra...)
	return registry
}

// Serve exposes registry on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
