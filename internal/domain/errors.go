package domain

import (
	"errors"
	"fmt"
)

// MediaErrorKind is the closed taxonomy for capture failures.
type MediaErrorKind string

const (
	MediaPermissionDenied MediaErrorKind = "permission-denied"
	MediaDeviceNotFound   MediaErrorKind = "device-not-found"
	MediaDeviceBusy       MediaErrorKind = "device-busy"
	MediaUnknown          MediaErrorKind = "unknown"
)

// MediaError is fatal to session establishment and is surfaced to the UI
// without automatic retry.
type MediaError struct {
	Kind MediaErrorKind
	Err  error
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// Message is the user-facing text for the error kind.
func (e *MediaError) Message() string {
	switch e.Kind {
	case MediaPermissionDenied:
		return "camera/microphone access denied"
	case MediaDeviceNotFound:
		return "no camera/microphone found"
	case MediaDeviceBusy:
		return "camera/microphone is being used by another application"
	default:
		return "could not access camera/microphone"
	}
}

// NewMediaError wraps err under kind; AsMediaError is the inverse.
func NewMediaError(kind MediaErrorKind, err error) *MediaError {
	return &MediaError{Kind: kind, Err: err}
}

func AsMediaError(err error) (*MediaError, bool) {
	var me *MediaError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// FailReason explains a terminal Failed session.
type FailReason string

const (
	FailMediaError         FailReason = "media-error"
	FailNegotiationTimeout FailReason = "negotiation-timeout"
	FailICE                FailReason = "ice-failed"
)

// Negotiation errors. Glare and out-of-order answers are handled locally
// by buffering and tie-break; these surface only when resolution is
// impossible.
var (
	ErrGlareUnresolved       = errors.New("glare unresolved")
	ErrInvalidSignalingState = errors.New("invalid signaling state")
	ErrMalformedMessage      = errors.New("malformed signal message")
	ErrSendFailed            = errors.New("signal send failed")
)
