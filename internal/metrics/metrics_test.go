package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func Test_RegistryExposesCollectors(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "extra"})
	registry := NewRegistry(extra)

	extra.Inc()
	Commands.WithLabelValues("ping", "ok").Inc()

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.Contains(t, body, "extra_total 1")
	require.Contains(t, body, `secubot_commands_total{command="ping",result="ok"}`)
	require.Contains(t, body, "go_goroutines")
}
