package server

import (
	"time"

	"github.com/jtejido/kioskscanner/internal/history"
	"github.com/jtejido/kioskscanner/internal/service"
)

// HealthResponse is served by /health and /api/health.
type HealthResponse struct {
	Status           string    `json:"status" cbor:"status"`
	Service          string    `json:"service" cbor:"service"`
	Timestamp        time.Time `json:"timestamp" cbor:"timestamp"`
	LibrariesLoaded  bool      `json:"libraries_loaded" cbor:"libraries_loaded"`
	DeviceEnumerable bool      `json:"device_enumerable" cbor:"device_enumerable"`
	Busy             bool      `json:"busy" cbor:"busy"`
}

// CaptureData mirrors the payload older kiosk clients read.
type CaptureData struct {
	ImageData string    `json:"image_data"`
	Finger    string    `json:"finger"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureResponse is a successful capture. Sample and Template are base64 in
// JSON and byte strings in CBOR.
type CaptureResponse struct {
	Status         string       `json:"status" cbor:"status"`
	Success        bool         `json:"success" cbor:"success"`
	Message        string       `json:"message" cbor:"message"`
	CaptureID      string       `json:"capture_id" cbor:"capture_id"`
	Finger         string       `json:"finger" cbor:"finger"`
	Format         string       `json:"format" cbor:"format"`
	MimeType       string       `json:"mime_type" cbor:"mime_type"`
	Sample         []byte       `json:"sample" cbor:"sample"`
	Width          uint32       `json:"width" cbor:"width"`
	Height         uint32       `json:"height" cbor:"height"`
	Resolution     uint32       `json:"resolution" cbor:"resolution"`
	Quality        string       `json:"quality" cbor:"quality"`
	Score          uint32       `json:"score" cbor:"score"`
	Template       []byte       `json:"template,omitempty" cbor:"template,omitempty"`
	TemplateFormat string       `json:"template_format,omitempty" cbor:"template_format,omitempty"`
	Attempts       int          `json:"attempts" cbor:"attempts"`
	Elapsed        string       `json:"elapsed" cbor:"elapsed"`
	Timestamp      time.Time    `json:"timestamp" cbor:"timestamp"`
	Device         string       `json:"device,omitempty" cbor:"device,omitempty"`
	Data           *CaptureData `json:"data,omitempty" cbor:"-"`
}

// ErrorResponse is every failed request.
type ErrorResponse struct {
	Status    string `json:"status" cbor:"status"`
	Success   bool   `json:"success" cbor:"success"`
	Kind      string `json:"kind" cbor:"kind"`
	Message   string `json:"message" cbor:"message"`
	Retryable bool   `json:"retryable" cbor:"retryable"`
	Attempts  int    `json:"attempts,omitempty" cbor:"attempts,omitempty"`
	RequestID string `json:"request_id,omitempty" cbor:"request_id,omitempty"`
}

// HistoryResponse lists recent captures, newest first.
type HistoryResponse struct {
	Captures []history.Entry `json:"captures"`
}

// ClearHistoryResponse answers DELETE /api/scanner/history.
type ClearHistoryResponse struct {
	Status  string `json:"status"`
	Cleared int    `json:"cleared"`
}

// ReloadResponse reports the libraries after a reload.
type ReloadResponse struct {
	Status    string               `json:"status"`
	Libraries *service.LibraryInfo `json:"libraries"`
}

// CodeEntry is one row of the status translation table.
type CodeEntry struct {
	Site      string `json:"site"`
	Status    string `json:"status"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}
