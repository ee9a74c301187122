package core

import (
	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

// Status is the UI-facing connection state owned by the orchestrator.
// Transitions only move forward, except connected -> disconnected ->
// connected (recoverable) and any state -> closed via teardown.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRequestingMedia Status = "requesting-media"
	StatusReady           Status = "ready"
	StatusConnecting      Status = "connecting"
	StatusConnected       Status = "connected"
	StatusDisconnected    Status = "disconnected"
	StatusFailed          Status = "failed"
	StatusClosed          Status = "closed"
)

// Events is the push surface the UI subscribes to. No polling API;
// callbacks fire on the orchestrator's delivery order.
type Events interface {
	ConnectionStateChanged(s Status)
	RemoteMediaAvailable(b *media.Bundle)
	MediaError(kind domain.MediaErrorKind, message string)
}

// NopEvents discards every notification.
type NopEvents struct{}

func (NopEvents) ConnectionStateChanged(Status)            {}
func (NopEvents) RemoteMediaAvailable(*media.Bundle)       {}
func (NopEvents) MediaError(domain.MediaErrorKind, string) {}
