package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"energy-crm/api/services"
	"energy-crm/pkg/ontology"
	"energy-crm/pkg/preferences"
	"energy-crm/pkg/services/workers"
	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// HealthChecker is satisfied by the embedded NATS server.
type HealthChecker interface {
	HealthCheck() error
}

// StoreChecker is satisfied by db.Service.
type StoreChecker interface {
	Health() error
}

// ActivityReporter is satisfied by the worker manager.
type ActivityReporter interface {
	CaseActivity() workers.CaseActivity
}

type Options struct {
	ServiceName string
	Version     string

	// Cases and Store are nil when no store is configured.
	Cases       *services.CaseService
	Store       StoreChecker
	Directory   *services.DirectoryService
	Preferences *preferences.Registry

	NATS     HealthChecker
	Activity ActivityReporter
}

type Handlers struct {
	opts Options
	log  *logrus.Entry
}

func NewHandlers(opts Options, log *logrus.Entry) *Handlers {
	return &Handlers{
		opts: opts,
		log:  log.WithField("component", "api"),
	}
}

func (h *Handlers) mode() string {
	if h.opts.Cases == nil {
		return shared.ModeMock
	}
	return shared.ModePersisted
}

// Health reports the state of the case store and the message bus. Parts that
// are not configured are reported as such and do not make the service
// unhealthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := shared.HealthStatus{
		Status:    "healthy",
		Service:   h.opts.ServiceName,
		Version:   h.opts.Version,
		Timestamp: time.Now().UTC(),
		Details:   map[string]string{"mode": h.mode()},
	}

	if h.opts.Store == nil {
		health.Details["database"] = "not configured"
	} else if err := h.opts.Store.Health(); err != nil {
		health.Status = "unhealthy"
		health.Details["database"] = "unhealthy: " + err.Error()
	} else {
		health.Details["database"] = "healthy"
	}

	if h.opts.NATS == nil {
		health.Details["nats"] = "disabled"
	} else if err := h.opts.NATS.HealthCheck(); err != nil {
		health.Status = "unhealthy"
		health.Details["nats"] = "unhealthy: " + err.Error()
	} else {
		health.Details["nats"] = "healthy"
	}

	if h.opts.Activity != nil {
		a := h.opts.Activity.CaseActivity()
		health.Details["case_events"] = fmt.Sprintf("created=%d updated=%d deleted=%d", a.Created, a.Updated, a.Deleted)
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	sendJSON(w, statusCode, health)
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, shared.Info{
		Name:    h.opts.ServiceName,
		Version: h.opts.Version,
		Mode:    h.mode(),
	})
}

// presentError writes err as an HTTP response. Not found renders a null body;
// unexpected errors are logged and hidden from the caller.
func (h *Handlers) presentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ontology.ErrUnavailable):
		sendError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
	case errors.Is(err, ontology.ErrNotFound):
		sendJSON(w, http.StatusNotFound, nil)
	case errors.Is(err, ontology.ErrBadParameter):
		sendError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, ontology.ErrConflict):
		sendError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("unexpected error")
		sendError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

// decodeBody decodes a JSON request body into dst. Failures wrap
// ontology.ErrBadParameter.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(ontology.ErrBadParameter, "invalid JSON body: "+err.Error())
	}
	return nil
}

func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, statusCode int, code, message string) {
	sendJSON(w, statusCode, shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    code,
			Message: message,
		},
	})
}
