package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/model"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

// errStore fails every operation with err.
type errStore struct {
	err error
}

func (s *errStore) Add(context.Context, string, model.Date) (bool, error)    { return false, s.err }
func (s *errStore) Delete(context.Context, string, model.Date) (bool, error) { return false, s.err }
func (s *errStore) IsExpired(context.Context, string, model.Date) (bool, error) {
	return false, s.err
}
func (s *errStore) Status(context.Context, string, model.Date) (model.ExpiryStatus, error) {
	return model.StatusNotFound, s.err
}
func (s *errStore) Expiring(context.Context, int) (map[model.MedicineKey]model.Date, error) {
	return nil, s.err
}
func (s *errStore) All(context.Context) (map[model.MedicineKey]model.Date, error) { return nil, s.err }
func (s *errStore) Len(context.Context) (int, error)                              { return 0, s.err }

// recordingNotifier keeps every broadcast message.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []model.WebSocketMessage
}

func (n *recordingNotifier) Broadcast(msg model.WebSocketMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

// newTestStore returns a memory store whose "today" is 2025-06-15 UTC.
func newTestStore() *store.MemoryStore {
	return store.NewMemoryStore(
		store.WithClock(func() time.Time { return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC) }),
		store.WithLocation(time.UTC),
	)
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func newTestRouter(s store.Store, opts ...RESTOption) *mux.Router {
	router := mux.NewRouter()
	NewRESTHandler(s, zap.NewNop(), opts...).RegisterRoutes(router)
	return router
}

func keyQuery(name, date string) string {
	v := url.Values{}
	v.Set("name", name)
	v.Set("expiration_date", date)
	return v.Encode()
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

func TestNewRESTHandler(t *testing.T) {
	// Act
	handler := NewRESTHandler(newTestStore(), zap.NewNop())

	// Assert
	if handler == nil {
		t.Fatal("NewRESTHandler() returned nil")
	}
	if handler.store == nil {
		t.Error("store should not be nil")
	}
	if handler.logger == nil {
		t.Error("logger should not be nil")
	}
	if handler.notifier == nil {
		t.Error("notifier should default to a no-op")
	}
	if handler.defaultDays != DefaultExpiringDays {
		t.Errorf("defaultDays = %d, want %d", handler.defaultDays, DefaultExpiringDays)
	}
}

func TestRESTHandler_HealthCheck(t *testing.T) {
	// Arrange
	handler := NewRESTHandler(newTestStore(), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	// Act
	handler.HealthCheck(rr, req)

	// Assert
	if rr.Code != http.StatusOK {
		t.Errorf("HealthCheck() status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response model.APIResponse[HealthResponse]
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Success || response.Data.Status != "healthy" || response.Data.Version != Version {
		t.Errorf("HealthCheck() response = %+v", response)
	}
}

func TestRESTHandler_ReadyCheck(t *testing.T) {
	tests := []struct {
		name       string
		store      store.Store
		wantStatus int
	}{
		{"ready", newTestStore(), http.StatusOK},
		{"store failing", &errStore{err: errors.New("boom")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newTestRouter(tt.store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRESTHandler_AddMedicine(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:       "valid medicine",
			body:       `{"name":"Aspirin","expiration_date":"2025-01-01"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:        "duplicate medicine",
			body:        `{"name":"Existing","expiration_date":"2025-01-01"}`,
			wantStatus:  http.StatusConflict,
			wantMessage: "medicine already included",
		},
		{
			name:        "empty name",
			body:        `{"name":"","expiration_date":"2025-01-01"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: model.ErrEmptyName.Error(),
		},
		{
			name:        "empty date",
			body:        `{"name":"Aspirin","expiration_date":"  "}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: model.ErrEmptyDate.Error(),
		},
		{
			name:        "malformed date",
			body:        `{"name":"Aspirin","expiration_date":"01/01/2025"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: model.ErrInvalidDate.Error(),
		},
		{
			name:        "invalid json",
			body:        `{"name":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := newTestStore()
			_, _ = s.Add(context.Background(), "Existing", mustDate(t, "2025-01-01"))
			router := newTestRouter(s)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/medicines", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rr, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantMessage != "" {
				if got := decodeError(t, rr); got.Message != tt.wantMessage {
					t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
				}
			}
		})
	}
}

func TestRESTHandler_AddMedicine_StoresAndNotifies(t *testing.T) {
	// Arrange
	s := newTestStore()
	notifier := &recordingNotifier{}
	router := newTestRouter(s, WithNotifier(notifier))
	body := `{"name":" Aspirin ","expiration_date":"2025-01-01"}`
	rr := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/medicines", bytes.NewBufferString(body)))

	// Assert
	var resp model.APIResponse[model.Medicine]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Key != "Aspirin-2025-01-01" || resp.Data.Name != "Aspirin" {
		t.Errorf("response data = %+v", resp.Data)
	}
	if n, _ := s.Len(context.Background()); n != 1 {
		t.Errorf("store Len() = %d, want 1", n)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Type != model.WSMessageTypeMedicineAdded {
		t.Errorf("notifier messages = %+v, want one medicine_added", notifier.messages)
	}
}

func TestRESTHandler_DeleteMedicine(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantMessage string
		wantLen     int
	}{
		{
			name:       "existing medicine",
			query:      keyQuery("Aspirin", "2025-01-01"),
			wantStatus: http.StatusOK,
			wantLen:    0,
		},
		{
			name:        "not found",
			query:       keyQuery("Aspirin", "2025-01-02"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "medicine not found",
			wantLen:     1,
		},
		{
			name:        "malformed date",
			query:       keyQuery("Aspirin", "2025-1-1"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: model.ErrInvalidDate.Error(),
			wantLen:     1,
		},
		{
			name:        "missing parameters",
			query:       "",
			wantStatus:  http.StatusBadRequest,
			wantMessage: model.ErrEmptyName.Error(),
			wantLen:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := newTestStore()
			_, _ = s.Add(context.Background(), "Aspirin", mustDate(t, "2025-01-01"))
			notifier := &recordingNotifier{}
			router := newTestRouter(s, WithNotifier(notifier))
			rr := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/medicines?"+tt.query, nil))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantMessage != "" {
				if got := decodeError(t, rr); got.Message != tt.wantMessage {
					t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
				}
			}
			if n, _ := s.Len(context.Background()); n != tt.wantLen {
				t.Errorf("store Len() = %d, want %d", n, tt.wantLen)
			}
			wantEvents := 0
			if tt.wantStatus == http.StatusOK {
				wantEvents = 1
			}
			if len(notifier.messages) != wantEvents {
				t.Errorf("notifier got %d messages, want %d", len(notifier.messages), wantEvents)
			}
		})
	}
}

func TestRESTHandler_ListMedicines(t *testing.T) {
	// Arrange
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, "Zinc", mustDate(t, "2025-03-01"))
	_, _ = s.Add(ctx, "Aspirin", mustDate(t, "2025-03-01"))
	_, _ = s.Add(ctx, "Ibuprofen", mustDate(t, "2025-01-01"))
	rr := httptest.NewRecorder()

	// Act
	newTestRouter(s).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil))

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp model.APIResponse[[]model.Medicine]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := []string{"Ibuprofen-2025-01-01", "Aspirin-2025-03-01", "Zinc-2025-03-01"}
	if len(resp.Data) != len(want) {
		t.Fatalf("got %d medicines, want %d", len(resp.Data), len(want))
	}
	for i, m := range resp.Data {
		if m.Key != want[i] {
			t.Errorf("row %d = %s, want %s", i, m.Key, want[i])
		}
	}
}

func TestRESTHandler_ListMedicines_Empty(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(newTestStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil))

	var resp model.APIResponse[[]model.Medicine]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || len(resp.Data) != 0 {
		t.Errorf("response = %+v, want success with no rows", resp)
	}
}

func TestRESTHandler_MedicineStatus(t *testing.T) {
	// Arrange: today is 2025-06-15.
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, "Old", mustDate(t, "2025-01-01"))
	_, _ = s.Add(ctx, "New", mustDate(t, "2099-12-31"))
	router := newTestRouter(s)

	tests := []struct {
		name        string
		query       string
		wantStatus  model.ExpiryStatus
		wantExpired bool
	}{
		{"expired", keyQuery("Old", "2025-01-01"), model.StatusExpired, true},
		{"not expired", keyQuery("New", "2099-12-31"), model.StatusNotExpired, false},
		{"not found", keyQuery("Missing", "2000-01-01"), model.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/medicines/status?"+tt.query, nil))

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
			}
			var resp model.APIResponse[model.StatusResponse]
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Data.Status != tt.wantStatus || resp.Data.Expired != tt.wantExpired {
				t.Errorf("status = %+v, want %s/%v", resp.Data, tt.wantStatus, tt.wantExpired)
			}
		})
	}
}

func TestRESTHandler_ExpiringMedicines(t *testing.T) {
	// Arrange: today is 2025-06-15.
	s := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, "Expired", mustDate(t, "2025-06-01"))
	_, _ = s.Add(ctx, "Soon", mustDate(t, "2025-06-20"))
	_, _ = s.Add(ctx, "Later", mustDate(t, "2025-12-31"))
	router := newTestRouter(s, WithDefaultExpiringDays(10))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantDays   int
		wantCount  int
	}{
		{"default window", "/api/v1/medicines/expiring", http.StatusOK, 10, 2},
		{"zero days", "/api/v1/medicines/expiring?days=0", http.StatusOK, 0, 1},
		{"negative days", "/api/v1/medicines/expiring?days=-30", http.StatusOK, -30, 0},
		{"year", "/api/v1/medicines/expiring?days=365", http.StatusOK, 365, 3},
		{"non-numeric", "/api/v1/medicines/expiring?days=soon", http.StatusBadRequest, 0, 0},
		{"empty value", "/api/v1/medicines/expiring?days=", http.StatusBadRequest, 0, 0},
		{"beyond 32 bits", "/api/v1/medicines/expiring?days=2147483648", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if got := decodeError(t, rr); got.Message != model.ErrInvalidDays.Error() {
					t.Errorf("message = %q, want %q", got.Message, model.ErrInvalidDays.Error())
				}
				return
			}

			var resp model.APIResponse[model.ExpiringResponse]
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Data.Days != tt.wantDays {
				t.Errorf("days = %d, want %d", resp.Data.Days, tt.wantDays)
			}
			if len(resp.Data.Medicines) != tt.wantCount {
				t.Errorf("got %d medicines, want %d", len(resp.Data.Medicines), tt.wantCount)
			}
		})
	}
}

func TestRESTHandler_StoreErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"list fails", errors.New("boom"), http.MethodGet, "/api/v1/medicines", "", http.StatusInternalServerError},
		{"expiring fails", errors.New("boom"), http.MethodGet, "/api/v1/medicines/expiring?days=1", "", http.StatusInternalServerError},
		{"add fails", errors.New("boom"), http.MethodPost, "/api/v1/medicines", `{"name":"A","expiration_date":"2025-01-01"}`, http.StatusInternalServerError},
		{"delete cancelled", context.Canceled, http.MethodDelete, "/api/v1/medicines?" + keyQuery("A", "2025-01-01"), "", http.StatusServiceUnavailable},
		{"status deadline", context.DeadlineExceeded, http.MethodGet, "/api/v1/medicines/status?" + keyQuery("A", "2025-01-01"), "", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))

			newTestRouter(&errStore{err: tt.err}).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}
		})
	}
}

func TestRESTHandler_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(newTestStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/medicines", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}
