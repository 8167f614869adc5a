package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/model"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// DefaultExpiringDays is the window used when a request omits days.
const DefaultExpiringDays = 30

// Response messages shown to API clients.
const (
	msgDuplicate      = "medicine already included"
	msgNotFound       = "medicine not found"
	msgInvalidBody    = "invalid request body"
	msgInternal       = "internal server error"
	msgRetrieveFailed = "failed to retrieve medicines"
)

// RESTOption configures a RESTHandler.
type RESTOption func(*RESTHandler)

// WithNotifier sets the receiver of add and delete events.
func WithNotifier(n Notifier) RESTOption {
	return func(h *RESTHandler) {
		if n != nil {
			h.notifier = n
		}
	}
}

// WithDefaultExpiringDays sets the window used when days is omitted.
func WithDefaultExpiringDays(days int) RESTOption {
	return func(h *RESTHandler) {
		h.defaultDays = days
	}
}

// RESTHandler handles REST API requests for medicines.
type RESTHandler struct {
	store       store.Store
	logger      *zap.Logger
	notifier    Notifier
	defaultDays int
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s store.Store, logger *zap.Logger, opts ...RESTOption) *RESTHandler {
	h := &RESTHandler{
		store:       s,
		logger:      logger,
		notifier:    nopNotifier{},
		defaultDays: DefaultExpiringDays,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/medicines", h.ListMedicines).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/medicines", h.AddMedicine).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/medicines", h.DeleteMedicine).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/medicines/status", h.MedicineStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/medicines/expiring", h.ExpiringMedicines).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Len(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready"}))
}

// ListMedicines handles GET /api/v1/medicines requests.
func (h *RESTHandler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("failed to list medicines", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgRetrieveFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(store.Sorted(all)))
}

// AddMedicine handles POST /api/v1/medicines requests.
func (h *RESTHandler) AddMedicine(w http.ResponseWriter, r *http.Request) {
	var input model.MedicineInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	key, err := input.Validate()
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, err := h.store.Add(r.Context(), key.Name, key.ExpirationDate)
	if err != nil {
		h.handleStoreError(w, err, "add medicine")
		return
	}
	if !added {
		h.writeError(w, http.StatusConflict, msgDuplicate)
		return
	}

	medicine := model.NewMedicine(key)
	h.logger.Info("medicine added",
		zap.String("name", key.Name),
		zap.Stringer("expiration_date", key.ExpirationDate),
	)
	h.notifier.Broadcast(model.NewMedicineEventMessage(model.WSMessageTypeMedicineAdded, medicine))

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(medicine))
}

// DeleteMedicine handles DELETE /api/v1/medicines?name=&expiration_date= requests.
func (h *RESTHandler) DeleteMedicine(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.Delete(r.Context(), key.Name, key.ExpirationDate)
	if err != nil {
		h.handleStoreError(w, err, "delete medicine")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	medicine := model.NewMedicine(key)
	h.logger.Info("medicine deleted",
		zap.String("name", key.Name),
		zap.Stringer("expiration_date", key.ExpirationDate),
	)
	h.notifier.Broadcast(model.NewMedicineEventMessage(model.WSMessageTypeMedicineDeleted, medicine))

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(medicine))
}

// MedicineStatus handles GET /api/v1/medicines/status requests.
func (h *RESTHandler) MedicineStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}

	status, err := h.store.Status(r.Context(), key.Name, key.ExpirationDate)
	if err != nil {
		h.handleStoreError(w, err, "medicine status")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.StatusResponse{
		Key:     key.String(),
		Expired: status.Expired(),
		Status:  status,
	}))
}

// ExpiringMedicines handles GET /api/v1/medicines/expiring?days=N requests.
func (h *RESTHandler) ExpiringMedicines(w http.ResponseWriter, r *http.Request) {
	days := h.defaultDays

	query := r.URL.Query()
	if query.Has("days") {
		parsed, err := model.ParseDays(query.Get("days"))
		if err != nil {
			h.logger.Warn("validation failed", zap.Error(err))
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		days = parsed
	}

	expiring, err := h.store.Expiring(r.Context(), days)
	if err != nil {
		h.logger.Error("failed to query expiring medicines", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgRetrieveFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.ExpiringResponse{
		Days:      days,
		Medicines: store.Sorted(expiring),
	}))
}

// keyFromQuery validates the name and expiration_date query parameters.
// It writes a 400 response and returns false when they are invalid.
func (h *RESTHandler) keyFromQuery(w http.ResponseWriter, r *http.Request) (model.MedicineKey, bool) {
	query := r.URL.Query()

	key, err := model.ValidateMedicineInput(query.Get("name"), query.Get("expiration_date"))
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return model.MedicineKey{}, false
	}

	return key, true
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("request cancelled", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
