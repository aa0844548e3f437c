package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartExporter serves /metrics on the given port in the background.
// A listen failure is logged, not fatal: losing the exporter must never
// stop billing.
func StartExporter(port int, warnf func(format string, args ...any)) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		if err := http.ListenAndServe(addr, mux); err != nil {
			warnf("metrics: exporter on %s: %v", addr, err)
		}
	}()
}
