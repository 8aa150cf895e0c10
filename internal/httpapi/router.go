// Package httpapi is the JSON HTTP surface over the job service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cronlock/internal/jobs"
	"cronlock/internal/launch"
	"cronlock/internal/registrar"
	"cronlock/internal/storage"
	"cronlock/pkg/logx"
)

// JobService is the subset of jobs.Service the API needs.
type JobService interface {
	Create(ctx context.Context, spec jobs.Spec) (storage.Job, error)
	Update(ctx context.Context, id int64, spec jobs.Spec) (storage.Job, error)
	Delete(ctx context.Context, id int64) error
	Run(ctx context.Context, id int64) launch.Result
	Get(ctx context.Context, id int64) (jobs.View, error)
	List(ctx context.Context) ([]jobs.View, error)
	Logs(ctx context.Context, id int64) (string, error)
	ClearLogs(ctx context.Context, id int64) error
}

type handler struct {
	svc     JobService
	log     logx.Logger
	limiter *rate.Limiter
}

type RouterOptions struct {
	// RunRatePerSec throttles POST /jobs/{id}/run across all jobs. <=0
	// disables the limit.
	RunRatePerSec float64
	Gatherer      prometheus.Gatherer
}

func NewRouter(svc JobService, opts RouterOptions, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{svc: svc, log: log.With(logx.String("comp", "httpapi"))}
	if opts.RunRatePerSec > 0 {
		burst := int(opts.RunRatePerSec)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RunRatePerSec), burst)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/run", h.run)
			r.Get("/logs", h.logs)
			r.Post("/logs/clear", h.clearLogs)
		})
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if views == nil {
		views = []jobs.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var spec jobs.Spec
	if !decode(w, r, &spec) {
		return
	}
	j, err := h.svc.Create(r.Context(), spec)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var spec jobs.Spec
	if !decode(w, r, &spec) {
		return
	}
	j, err := h.svc.Update(r.Context(), id, spec)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PID       int    `json:"pid,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, runResponse{Message: "Too many run requests, try again shortly"})
		return
	}

	res := h.svc.Run(r.Context(), id)
	body := runResponse{Success: res.OK(), Message: res.Message, PID: res.PID, Completed: res.Completed}
	writeJSON(w, runStatus(res.Outcome), body)
}

func runStatus(o launch.Outcome) int {
	switch o {
	case launch.OutcomeStarted:
		return http.StatusOK
	case launch.OutcomeAlreadyRunning:
		return http.StatusConflict
	case launch.OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Logs(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"log": out})
}

func (h *handler) clearLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.svc.ClearLogs(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrNameTaken):
		status = http.StatusConflict
	case errors.Is(err, jobs.ErrInvalid), errors.Is(err, registrar.ErrInvalidSchedule):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", logx.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
