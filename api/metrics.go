package api

import (
	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
)

// usePrometheusMetrics mounts the go-chi prometheus collector middleware
// under the default "gochi_http" ID. Must run before any route is mounted.
func usePrometheusMetrics(r chi.Router) {
	r.Use(chiprometheus.NewMiddleware("gochi_http"))
}
