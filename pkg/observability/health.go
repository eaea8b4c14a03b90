package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem is ready; nil means ready.
type ReadyCheck func(ctx context.Context) error

type healthBody struct {
	Status string            `json:"status"`
	Failed map[string]string `json:"failed,omitempty"`
}

// HealthHandler serves /healthz. It always answers 200 {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthBody{Status: healthStatusOK})
	})
}

// ReadyHandler serves /readyz. Every named check runs; any failure answers
// 503 with the failing names and their errors.
func ReadyHandler(checks map[string]ReadyCheck) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}

	sort.Strings(names)

	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		body := healthBody{Status: healthStatusOK}

		for _, name := range names {
			err := checks[name](hr.Context())
			if err != nil {
				if body.Failed == nil {
					body.Failed = make(map[string]string)
				}

				body.Failed[name] = err.Error()
			}
		}

		if len(body.Failed) > 0 {
			body.Status = healthStatusUnavailable
			writeHealth(rw, http.StatusServiceUnavailable, body)

			return
		}

		writeHealth(rw, http.StatusOK, body)
	})
}

func writeHealth(rw http.ResponseWriter, code int, body healthBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	data, err := json.Marshal(body)
	if err != nil {
		return
	}

	_, _ = rw.Write(data)
}
