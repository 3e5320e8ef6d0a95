// Package metrics declares the Prometheus collectors shared across the
// application. Collectors are registered on the default registry and exposed
// by the /metrics endpoint wired in cmd/web.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API requests by path and response status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistloop_http_requests_total",
		Help: "API requests handled, by path and status code.",
	}, []string{"path", "status"})

	// FallbackSteps counts invocations of each recommendation fallback
	// strategy. The primary recommendation call is not counted here.
	FallbackSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistloop_recommendation_fallback_steps_total",
		Help: "Fallback recommendation strategies invoked, by step.",
	}, []string{"step"})

	// TokenRefreshes counts user token refresh exchanges.
	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playlistloop_token_refreshes_total",
		Help: "User OAuth token refresh exchanges performed.",
	})

	// DailyPickRefreshes counts daily pick cache recomputations.
	DailyPickRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playlistloop_daily_pick_refreshes_total",
		Help: "Daily pick cache recomputations.",
	})
)
