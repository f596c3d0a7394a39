// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntapi_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	PayoutsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huntapi_payouts_recorded_total",
		Help: "Bonus payouts recorded.",
	})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntapi_hunt_status_transitions_total",
		Help: "Hunt status changes by target status.",
	}, []string{"to"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{HTTPRequests, PayoutsRecorded, StatusTransitions} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest counts a finished request.
func ObserveRequest(method string, status int) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
