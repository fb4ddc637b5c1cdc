package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// BaseMuxOptions configures the operational endpoints every service exposes.
type BaseMuxOptions struct {
	Checks       []ReadyCheck
	CheckTimeout time.Duration
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewBaseMux registers /healthz, /readyz and (optionally) /metrics.
func NewBaseMux(opts BaseMuxOptions) *http.ServeMux {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		results := map[string]string{}
		healthy := true
		for _, check := range opts.Checks {
			if check.Check == nil {
				continue
			}
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			ctx, cancel := context.WithTimeout(r.Context(), opts.CheckTimeout)
			err := check.Check(ctx)
			cancel()
			if err != nil {
				healthy = false
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":  healthy,
			"checks": results,
		})
	})
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
