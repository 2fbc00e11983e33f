package scanner

import (
	"errors"
	"fmt"
)

// Kind is one entry of the capture error taxonomy.
type Kind string

const (
	KindNone               Kind = ""
	KindResolution         Kind = "resolution_error"
	KindNoDeviceFound      Kind = "no_device_found"
	KindDeviceBusy         Kind = "device_busy"
	KindDeviceOpenFailed   Kind = "device_open_failed"
	KindCaptureTimeout     Kind = "capture_timeout"
	KindFingerNotDetected  Kind = "finger_not_detected"
	KindPoorQuality        Kind = "poor_quality"
	KindDeviceDisconnected Kind = "device_disconnected"
	KindDriverFault        Kind = "driver_fault"
	KindUnknownDevice      Kind = "unknown_device_error"
	KindRetriesExhausted   Kind = "retries_exhausted"
)

// Kinds lists the whole taxonomy.
func Kinds() []Kind {
	return []Kind{
		KindResolution, KindNoDeviceFound, KindDeviceBusy, KindDeviceOpenFailed,
		KindCaptureTimeout, KindFingerNotDetected, KindPoorQuality,
		KindDeviceDisconnected, KindDriverFault, KindUnknownDevice, KindRetriesExhausted,
	}
}

var retryableKinds = map[Kind]bool{
	KindCaptureTimeout:    true,
	KindFingerNotDetected: true,
	KindPoorQuality:       true,
}

var kindMessages = map[Kind]string{
	KindResolution:         "the fingerprint SDK libraries could not be loaded",
	KindNoDeviceFound:      "no fingerprint reader is connected",
	KindDeviceBusy:         "the fingerprint reader is busy, try again shortly",
	KindDeviceOpenFailed:   "the fingerprint reader could not be opened",
	KindCaptureTimeout:     "no finger was placed on the reader in time",
	KindFingerNotDetected:  "no finger was detected, place your finger on the reader",
	KindPoorQuality:        "the fingerprint image quality was too low, try again",
	KindDeviceDisconnected: "the fingerprint reader was disconnected",
	KindDriverFault:        "the fingerprint reader driver reported a fault",
	KindUnknownDevice:      "the fingerprint reader reported an unknown error",
	KindRetriesExhausted:   "the fingerprint could not be captured",
}

// Describe returns the user-facing message for kind.
func Describe(kind Kind) string { return kindMessages[kind] }

// Sentinel errors, one per Kind, for errors.Is.
var (
	ErrResolution         = errors.New("resolution error")
	ErrNoDeviceFound      = errors.New("no device found")
	ErrDeviceBusy         = errors.New("device busy")
	ErrDeviceOpenFailed   = errors.New("device open failed")
	ErrCaptureTimeout     = errors.New("capture timeout")
	ErrFingerNotDetected  = errors.New("finger not detected")
	ErrPoorQuality        = errors.New("poor quality")
	ErrDeviceDisconnected = errors.New("device disconnected")
	ErrDriverFault        = errors.New("driver fault")
	ErrUnknownDevice      = errors.New("unknown device error")
	ErrRetriesExhausted   = errors.New("retries exhausted")
)

var kindSentinels = map[Kind]error{
	KindResolution:         ErrResolution,
	KindNoDeviceFound:      ErrNoDeviceFound,
	KindDeviceBusy:         ErrDeviceBusy,
	KindDeviceOpenFailed:   ErrDeviceOpenFailed,
	KindCaptureTimeout:     ErrCaptureTimeout,
	KindFingerNotDetected:  ErrFingerNotDetected,
	KindPoorQuality:        ErrPoorQuality,
	KindDeviceDisconnected: ErrDeviceDisconnected,
	KindDriverFault:        ErrDriverFault,
	KindUnknownDevice:      ErrUnknownDevice,
	KindRetriesExhausted:   ErrRetriesExhausted,
}

// Error is a classified scanner failure.
type Error struct {
	Kind      Kind
	Op        string
	Site      CallSite
	Code      Status // vendor status, for logs only
	Retryable bool
	Message   string

	// Set on KindRetriesExhausted.
	Attempts int
	Last     *Error

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Code != StatusSuccess {
		base += fmt.Sprintf(" (%s at %s)", e.Code, e.Site)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.Last != nil {
		base += fmt.Sprintf(" after %d attempts, last: %s", e.Attempts, e.Last.Kind)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the Kind sentinel of e.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return kindSentinels[e.Kind] == target
}

// Fatal reports whether no further attempt may be made.
func (e *Error) Fatal() bool { return !e.Retryable }

func newError(op string, c Classification, err error) *Error {
	return &Error{Kind: c.Kind, Op: op, Retryable: c.Retryable, Message: c.Message, Err: err}
}

func vendorError(op string, site CallSite, code Status) *Error {
	c := Translate(site, code)
	e := newError(op, c, nil)
	e.Site = site
	e.Code = code
	return e
}

func qualityError(op string, q Quality) *Error {
	e := newError(op, TranslateQuality(q), nil)
	e.Site = SiteCaptureWait
	return e
}

func resolutionError(op, message string, err error) *Error {
	return newError(op, classify(KindResolution, message), err)
}

// KindOf returns the Kind carried by err, or KindNone.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNone
}

// IsRetryable reports whether err may be retried within the same request.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
