package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

const (
	envHeader    = "X-MealMarket-Env"
	probeTimeout = 2 * time.Second
)

// Pinger is satisfied by *db.Client and *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Live(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// Ready pings every dependency and answers 503 naming the ones that failed.
func Ready(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		var failed []string
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed = append(failed, name)
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "dependency", name), "readiness probe failed", err)
				}
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"failed": failed}))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
