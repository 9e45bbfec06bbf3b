package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const version = "0.1.0"

// Dependency is one backing service the readiness endpoint pings.
// Liveness never touches dependencies; only /health/ready does.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

func PostgresDependency(db *sql.DB) Dependency {
	return Dependency{
		Name:  "postgres",
		Check: db.PingContext,
	}
}

func RedisDependency(client *redis.Client) Dependency {
	return Dependency{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

type readinessResponse struct {
	Status string `json:"status"`
	// Checks reports each backing dependency; Upstreams reports the
	// circuit breaker state per AI provider and the ad library.
	Checks    map[string]dependencyResult `json:"checks,omitempty"`
	Upstreams map[string]string           `json:"upstreams,omitempty"`
	Version   string                      `json:"version"`
}

type dependencyResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func checkDependencies(ctx context.Context, deps []Dependency) map[string]dependencyResult {
	results := make([]dependencyResult, len(deps))

	var wg sync.WaitGroup
	for i, dep := range deps {
		wg.Add(1)
		go func(i int, dep Dependency) {
			defer wg.Done()

			start := time.Now()
			err := dep.Check(ctx)

			results[i] = dependencyResult{
				Status:    "ok",
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Status = "error"
				results[i].Error = err.Error()
			}
		}(i, dep)
	}
	wg.Wait()

	byName := make(map[string]dependencyResult, len(deps))
	for i, dep := range deps {
		byName[dep.Name] = results[i]
	}
	return byName
}

// handleReadiness reports whether the service can take traffic. A failed
// dependency makes it not_ready (503); an open upstream breaker is
// reported but does not fail readiness, the service still serves
// everything that does not need that upstream.
func handleReadiness(deps []Dependency, upstreams func() map[string]string, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := readinessResponse{
			Status:  "ready",
			Checks:  checkDependencies(ctx, deps),
			Version: version,
		}
		if upstreams != nil {
			resp.Upstreams = upstreams()
		}

		httpStatus := http.StatusOK
		for _, result := range resp.Checks {
			if result.Status != "ok" {
				resp.Status = "not_ready"
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(resp)
	}
}
