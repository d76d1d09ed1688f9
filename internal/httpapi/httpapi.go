// Package httpapi is the coordinator's HTTP surface: pipeline creation and
// lookup, the worker poll/heartbeat/report cycle, fleet and dashboard
// listings, the websocket log fan-out, and (when configured) the
// hosting-provider webhook relay, all behind a chi router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/ingest"
	"github.com/buildit-project/buildit/internal/logfanout"
	"github.com/buildit-project/buildit/internal/metrics"
	"github.com/buildit-project/buildit/internal/pipeline"
	"github.com/buildit-project/buildit/internal/registry"
	"github.com/buildit-project/buildit/internal/scheduler"
	"github.com/buildit-project/buildit/internal/store"
)

// PRResolver resolves a GitHub pull request number to the branch/commit a
// pipeline should build plus its body, which may carry a "#buildit" package
// marker (see pipeline.ParsePackageMarker).
type PRResolver interface {
	ResolvePR(ctx context.Context, prNumber int64) (branch, sha, body string, err error)
}

// API wires every dependency a handler needs. Constructed once in main and
// passed to NewRouter.
type API struct {
	Store     *store.Store
	Pipelines *pipeline.Factory
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Ingest    *ingest.Ingest
	Hub       *logfanout.Hub
	PRs       PRResolver
	Webhook   http.Handler
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	WorkerSecret string

	// DashboardOrigin is the single allowed CORS origin for
	// /api/dashboard/* requests (the web dashboard's own origin).
	DashboardOrigin string

	validate *validator.Validate
}

// NewRouter builds the coordinator's HTTP handler tree.
func NewRouter(api *API) http.Handler {
	api.validate = validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(zapLogger(api.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if api.Webhook != nil {
		r.Post("/webhook", api.Webhook.ServeHTTP)
	}
	if api.Metrics != nil {
		r.Get("/metrics", api.Metrics.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{api.DashboardOrigin},
				AllowedMethods: []string{http.MethodGet},
			}))
			r.Get("/status", api.handleDashboardStatus)
		})

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/new", api.handlePipelineNew)
			r.Post("/new_pr", api.handlePipelineNewPR)
			r.Get("/info", api.handlePipelineInfo)
			r.Get("/list", api.handlePipelineList)
		})

		r.Route("/worker", func(r chi.Router) {
			r.Post("/heartbeat", api.handleWorkerHeartbeat)
			r.Post("/poll", api.handleWorkerPoll)
			r.Post("/job_update", api.handleWorkerJobUpdate)
			r.Get("/list", api.handleWorkerList)
		})

		r.Get("/job/info", api.handleJobInfo)

		r.Route("/ws", func(r chi.Router) {
			r.Get("/worker/{hostname}", api.handleWSWorker)
			r.Get("/viewer/{hostname}", api.handleWSViewer)
		})
	})

	return r
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func zapLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log != nil {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}
		})
	}
}
