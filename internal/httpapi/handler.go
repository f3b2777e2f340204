// Package httpapi exposes the catalog over HTTP/JSON.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/internal/core"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes int64 = 1 << 20

// Handler serves the catalog resources.
type Handler struct {
	svc            *core.Service
	logger         *zap.Logger
	maxBody        int64
	metrics        *RequestMetrics
	metricsPath    string
	metricsHandler http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBodyBytes overrides the request body limit.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithRequestMetrics records every routed request.
func WithRequestMetrics(m *RequestMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMetricsHandler mounts an exposition handler (usually promhttp) at path.
func WithMetricsHandler(path string, handler http.Handler) Option {
	return func(h *Handler) {
		h.metricsPath = path
		h.metricsHandler = handler
	}
}

// NewHandler constructs the HTTP handler for svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: zap.NewNop(), maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("http")
	return h
}

// Router builds the routing table. Fixed paths are registered before the
// generic /{kind} routes so they take precedence.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Use(requestIDMiddleware, h.recoverMiddleware, h.loggingMiddleware)
	if h.metrics != nil {
		r.Use(h.metrics.middleware)
	}

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	if h.metricsHandler != nil {
		r.Handle(h.metricsPath, h.metricsHandler).Methods(http.MethodGet)
	}
	r.HandleFunc("/", h.handleRoot)
	r.HandleFunc("/broker", h.handleGetBroker).Methods(http.MethodGet)
	r.HandleFunc("/broker", h.handlePutBroker).Methods(http.MethodPut)
	r.HandleFunc("/config", h.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users", h.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.handleGetUser).Methods(http.MethodGet)

	r.HandleFunc("/{kind}", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/{kind}", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/{kind}/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/{kind}/{id}", h.handleReplace).Methods(http.MethodPut)
	r.HandleFunc("/{kind}/{id}", h.handleDelete).Methods(http.MethodDelete)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusBadRequest, "Invalid request. Specify a resource type (e.g., /broker, /services).")
}

func (h *Handler) handleGetBroker(w http.ResponseWriter, r *http.Request) {
	broker, err := h.svc.Broker(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, broker)
}

func (h *Handler) handlePutBroker(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	broker, err := h.svc.ReplaceBroker(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Resource updated successfully", Body: broker})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type loginRequest struct {
	UserID   string `json:"userID"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.fail(w, r, domain.ErrMalformedInput)
		return
	}
	doctor, err := h.svc.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Login successful", Body: doctor, User: doctor})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := queryOf(r)
	if id, ok := q.Value("userID"); ok {
		h.writeUser(w, r, id)
		return
	}
	users, err := h.svc.ListUsers(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, mux.Vars(r)["id"])
}

func (h *Handler) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(w, r)
	if !ok {
		return
	}
	out, err := h.svc.List(r.Context(), entity, queryOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Get(r.Context(), entity, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(w, r)
	if !ok {
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Create(r.Context(), entity, payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Message: "Resource posted successfully", Body: out})
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(w, r)
	if !ok {
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Replace(r.Context(), entity, mux.Vars(r)["id"], payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Resource updated successfully", Body: out})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.svc.Delete(r.Context(), entity, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: fmt.Sprintf("%s '%s' deleted successfully", capitalize(string(entity)), id)})
}

// entity resolves the {kind} path segment, answering 400 for anything that
// is not one of the four collections.
func (h *Handler) entity(w http.ResponseWriter, r *http.Request) (domain.EntityType, bool) {
	kind := mux.Vars(r)["kind"]
	entity, ok := domain.ParseEntityType(kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid resource type: "+kind)
		return "", false
	}
	return entity, true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		h.fail(w, r, domain.ErrMalformedInput)
		return nil, false
	}
	return raw, true
}

// decode parses the request body into a generic JSON value, keeping numbers
// as json.Number so large chat IDs survive.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (any, bool) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		h.fail(w, r, domain.ErrMalformedInput)
		return nil, false
	}
	if dec.More() {
		h.fail(w, r, domain.ErrMalformedInput)
		return nil, false
	}
	return payload, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, message)
}

func queryOf(r *http.Request) core.Query {
	values := r.URL.Query()
	q := make(core.Query, len(values))
	for k, v := range values {
		if len(v) > 0 {
			q[k] = v[0]
		}
	}
	return q
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
