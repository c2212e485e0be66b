// Package metrics exposes the Prometheus metrics of a watchlist run.
// All metrics are defined in their respective packages (catalog, fetch, auth,
// session, ratelimit) and registered via promauto on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Session Cache Metrics (pkg/session):
//   - watchlist_session_cache_hits_total{backend} (Counter): Persisted sessions loaded (file, redis)
//   - watchlist_session_cache_misses_total{backend} (Counter): Loads that found nothing
//   - watchlist_session_cache_errors_total{backend, operation} (Counter): Load/save failures
//
// Login Metrics (pkg/auth):
//   - watchlist_logins_total{result} (Counter): Logins by result (cached, fresh, failed)
//
// Catalog Request Metrics (pkg/catalog):
//   - watchlist_catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - watchlist_catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - watchlist_catalog_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Pacing Metrics (pkg/ratelimit):
//   - watchlist_rate_limit_pauses_total (Counter): Server requested pauses (Retry-After)
//   - watchlist_rate_limit_wait_seconds (Histogram): Time spent waiting for the limiter
//
// Item Fetch Metrics (pkg/fetch):
//   - watchlist_item_fetches_total{result} (Counter): Items by result (success, failed, parse_error)
//   - watchlist_item_fetch_retries_total (Counter): Item request retries
//   - watchlist_item_fetch_backoff_seconds (Histogram): Backoff before retries
//   - watchlist_item_fetch_duration_seconds (Histogram): Per item duration, retries included
//
// Example Prometheus Queries:
//
//   # Cached login ratio
//   sum(watchlist_logins_total{result="cached"}) / sum(watchlist_logins_total)
//
//   # Item failure rate
//   rate(watchlist_item_fetches_total{result!="success"}[5m])
//
//   # P95 item latency
//   histogram_quantile(0.95, rate(watchlist_item_fetch_duration_seconds_bucket[5m]))
