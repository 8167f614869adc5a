// Package handler provides HTTP request handlers for the medicine API.
package handler

import "github.com/vyrodovalexey/medtrack/internal/model"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// Notifier receives medicine events produced by the REST handlers.
type Notifier interface {
	Broadcast(msg model.WebSocketMessage)
}

// nopNotifier drops every event.
type nopNotifier struct{}

func (nopNotifier) Broadcast(model.WebSocketMessage) {}
