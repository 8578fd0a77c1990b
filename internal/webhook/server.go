package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/source"
)

// NewServer builds the chi router exposing the HTTP surface from §6:
// POST /webhook (and any integration-registered sub-paths under it),
// GET /healthz, and GET /metrics (§4.9's addition to the distilled spec's
// endpoint list).
func NewServer(d *Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhook", d.serveWebhook("/webhook"))
	r.Post("/webhook/*", d.serveWebhookWildcard())

	return r
}

func (d *Dispatcher) serveWebhook(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		d.acceptEvent(w, req, path)
	}
}

func (d *Dispatcher) serveWebhookWildcard() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		d.acceptEvent(w, req, "/webhook/"+chi.URLParam(req, "*"))
	}
}

// acceptEvent implements §4.5 step 1/§6: decode the payload, enqueue it to
// every matching processor, and acknowledge 200 only once enqueueing is
// done. Processing itself happens asynchronously on the processor queues.
func (d *Dispatcher) acceptEvent(w http.ResponseWriter, req *http.Request, path string) {
	var payload any
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event := source.Event{
		TraceID: obs.NewTraceID(),
		Path:    path,
		Headers: req.Header,
		Payload: payload,
	}

	d.Dispatch(req.Context(), event)
	w.WriteHeader(http.StatusOK)
}
