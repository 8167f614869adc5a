package model

import "time"

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StatusResponse is the body of an expiration check.
type StatusResponse struct {
	Key     string       `json:"key"`
	Expired bool         `json:"expired"`
	Status  ExpiryStatus `json:"status"`
}

// ExpiringResponse is the body of an expiring-window query.
type ExpiringResponse struct {
	Days      int        `json:"days"`
	Medicines []Medicine `json:"medicines"`
}

// WebSocketMessage represents a message sent over WebSocket connection.
type WebSocketMessage struct {
	Type      string     `json:"type"`
	Medicine  *Medicine  `json:"medicine,omitempty"`
	Days      int        `json:"days,omitempty"`
	Medicines []Medicine `json:"medicines,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeMedicineAdded    = "medicine_added"
	WSMessageTypeMedicineDeleted  = "medicine_deleted"
	WSMessageTypeExpiringSnapshot = "expiring_snapshot"
	WSMessageTypeError            = "error"
)

// NewMedicineEventMessage creates a message announcing an added or
// deleted medicine.
func NewMedicineEventMessage(msgType string, m Medicine) WebSocketMessage {
	return WebSocketMessage{
		Type:      msgType,
		Medicine:  &m,
		Timestamp: time.Now().UTC(),
	}
}

// NewExpiringSnapshotMessage creates a message carrying the medicines in
// the expiring window.
func NewExpiringSnapshotMessage(days int, medicines []Medicine) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeExpiringSnapshot,
		Days:      days,
		Medicines: medicines,
		Timestamp: time.Now().UTC(),
	}
}
