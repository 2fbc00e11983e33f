// Package service is the capture facade used by the HTTP server and the CLI.
// Transports never see sessions, handles or vendor status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jtejido/kioskscanner/internal/history"
	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/metrics"
	"github.com/jtejido/kioskscanner/internal/scanner"
)

// Request limits.
const (
	MaxTimeoutSeconds = 300
	MaxAttempts       = 10
	DefaultFinger     = "index"
)

// Options configure a Service. Zero values fall back to scanner defaults.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	Grace       time.Duration
	Resolution  uint32
	Template    scanner.TemplateFormat
	Format      imaging.Format
	HistorySize int
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Service owns the reader slot and serialises access to it.
type Service struct {
	resolver *scanner.Resolver
	slot     *scanner.Slot
	ctrl     *scanner.Controller
	history  *history.Log
	metrics  *metrics.Collector
	clock    clockwork.Clock
	log      *slog.Logger
	opts     Options
}

// New builds the facade over resolver. Nothing is loaded until the first
// capture, status query or self-test.
func New(resolver *scanner.Resolver, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Grace <= 0 {
		opts.Grace = scanner.DefaultCaptureGrace
	}
	if opts.Timeout <= 0 {
		opts.Timeout = scanner.DefaultAttemptTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = scanner.DefaultMaxAttempts
	}
	if opts.Template == 0 {
		opts.Template = scanner.TemplateANSI378
	}
	if opts.Format == "" {
		opts.Format = imaging.FormatPNG
	}

	scOpts := []scanner.Option{
		scanner.WithClock(opts.Clock),
		scanner.WithLogger(opts.Logger),
		scanner.WithCaptureGrace(opts.Grace),
	}
	if opts.Metrics != nil {
		scOpts = append(scOpts, scanner.WithObserver(opts.Metrics))
	}
	slot := scanner.NewSlot(scOpts...)
	return &Service{
		resolver: resolver,
		slot:     slot,
		ctrl:     scanner.NewController(resolver, slot, scOpts...),
		history:  history.New(opts.HistorySize),
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		log:      opts.Logger,
		opts:     opts,
	}
}

// ErrInvalidRequest matches every *RequestError.
var ErrInvalidRequest = errors.New("invalid capture request")

// RequestError rejects a capture request before the reader is touched.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

// CaptureRequest is one logical capture. Zero fields use the configured
// defaults.
type CaptureRequest struct {
	Finger         string `json:"finger_name"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxAttempts    int    `json:"max_attempts"`
	Format         string `json:"format"`
	Template       string `json:"template_format"`
}

// CaptureResult is a successful capture ready for transport.
type CaptureResult struct {
	ID             string
	Finger         string
	Format         imaging.Format
	MimeType       string
	Sample         []byte
	Width          uint32
	Height         uint32
	Resolution     uint32
	Quality        string
	Score          uint32
	Template       []byte
	TemplateFormat string
	Attempts       int
	Elapsed        time.Duration
	CapturedAt     time.Time
	Device         scanner.DeviceInfo
}

type captureParams struct {
	finger  scanner.Finger
	format  imaging.Format
	policy  scanner.Policy
	capture scanner.CaptureOptions
}

func (s *Service) params(req CaptureRequest) (captureParams, error) {
	var p captureParams

	name := req.Finger
	if name == "" {
		name = DefaultFinger
	}
	finger, ok := scanner.ParseFinger(name)
	if !ok {
		return p, &RequestError{Field: "finger_name", Reason: fmt.Sprintf("unknown finger %q", req.Finger)}
	}

	timeout := s.opts.Timeout
	switch {
	case req.TimeoutSeconds < 0 || req.TimeoutSeconds > MaxTimeoutSeconds:
		return p, &RequestError{Field: "timeout_seconds", Reason: fmt.Sprintf("must be between 1 and %d", MaxTimeoutSeconds)}
	case req.TimeoutSeconds > 0:
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	attempts := s.opts.MaxAttempts
	switch {
	case req.MaxAttempts < 0 || req.MaxAttempts > MaxAttempts:
		return p, &RequestError{Field: "max_attempts", Reason: fmt.Sprintf("must be between 1 and %d", MaxAttempts)}
	case req.MaxAttempts > 0:
		attempts = req.MaxAttempts
	}

	format := s.opts.Format
	if req.Format != "" {
		f, err := imaging.ParseFormat(req.Format)
		if err != nil {
			return p, &RequestError{Field: "format", Reason: err.Error()}
		}
		format = f
	}

	tmpl := s.opts.Template
	if req.Template != "" {
		t, ok := scanner.ParseTemplateFormat(req.Template)
		if !ok {
			return p, &RequestError{Field: "template_format", Reason: fmt.Sprintf("unknown template format %q", req.Template)}
		}
		tmpl = t
	}

	p.finger = finger
	p.format = format
	p.policy = scanner.Policy{MaxAttempts: attempts, AttemptTimeout: timeout}
	p.capture = scanner.CaptureOptions{Resolution: s.opts.Resolution, Template: tmpl, Finger: finger}
	return p, nil
}

// RequestCapture runs one capture under the retry policy. The whole request
// is bounded by attempts × (timeout + grace) on top of ctx.
func (s *Service) RequestCapture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	p, err := s.params(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	start := s.clock.Now()
	ctx, cancel := clockwork.WithTimeout(ctx, s.clock, p.policy.Budget(s.opts.Grace))
	defer cancel()

	s.log.Info("capture.requested", "id", id, "finger", p.finger.String(),
		"timeout", p.policy.AttemptTimeout, "max_attempts", p.policy.MaxAttempts)

	sample, err := s.ctrl.CaptureWithRetry(ctx, p.policy, p.capture)
	entry := history.Entry{ID: id, Finger: p.finger.String(), StartedAt: start}
	if err == nil {
		var result *CaptureResult
		result, err = s.encode(id, p, sample)
		if err == nil {
			result.Elapsed = s.clock.Since(start)
			entry.Status = "ok"
			entry.Attempts = result.Attempts
			entry.Quality = result.Quality
			entry.Duration = result.Elapsed
			s.history.Add(entry)
			return result, nil
		}
	}

	entry.Status = "error"
	entry.Kind = string(scanner.KindOf(err))
	var se *scanner.Error
	if errors.As(err, &se) {
		entry.Attempts = se.Attempts
	}
	entry.Duration = s.clock.Since(start)
	s.history.Add(entry)
	return nil, err
}

func (s *Service) encode(id string, p captureParams, sample *scanner.Sample) (*CaptureResult, error) {
	img, err := imaging.FromRaw(sample.Image, sample.Width, sample.Height, sample.BPP)
	if err != nil {
		return nil, &scanner.Error{
			Kind:    scanner.KindDriverFault,
			Op:      "service.encode",
			Message: "the reader returned an image that could not be converted",
			Err:     err,
		}
	}
	data, err := imaging.EncodeBytes(img, p.format)
	if err != nil {
		return nil, fmt.Errorf("encode %s sample: %w", p.format, err)
	}

	res := &CaptureResult{
		ID:         id,
		Finger:     p.finger.String(),
		Format:     p.format,
		MimeType:   p.format.MimeType(),
		Sample:     data,
		Width:      sample.Width,
		Height:     sample.Height,
		Resolution: sample.Resolution,
		Quality:    sample.Quality.String(),
		Score:      sample.Score,
		Attempts:   sample.Attempts,
		CapturedAt: sample.CapturedAt,
		Device:     sample.Device,
	}
	if len(sample.Template) > 0 {
		res.Template = sample.Template
		res.TemplateFormat = sample.TemplateFormat.String()
	}
	return res, nil
}

// Health reports library and device state without opening a session or
// triggering resolution.
type Health struct {
	LibrariesLoaded  bool `json:"libraries_loaded"`
	DeviceEnumerable bool `json:"device_enumerable"`
	Devices          int  `json:"devices"`
	Busy             bool `json:"busy"`
}

func (s *Service) Health() Health {
	h := Health{Busy: s.slot.Busy()}
	lib, release := s.resolver.AcquireCurrent()
	defer release()
	if lib == nil {
		return h
	}
	h.LibrariesLoaded = true
	devices, err := lib.Devices()
	if err == nil {
		h.Devices = len(devices)
		h.DeviceEnumerable = len(devices) > 0
	}
	return h
}

// Scanner states reported by Status.
const (
	StateReady       = "ready"
	StateNoDevices   = "no_devices"
	StateUnavailable = "unavailable"
	StateInitFailed  = "init_failed"
)

// Status is the detailed scanner report.
type Status struct {
	ScannerAvailable bool                 `json:"scanner_available"`
	Status           string               `json:"status"`
	Platform         string               `json:"platform"`
	DeviceCount      int                  `json:"device_count"`
	Devices          []scanner.DeviceInfo `json:"devices,omitempty"`
	LibraryTier      string               `json:"library_tier,omitempty"`
	SDKVersion       string               `json:"sdk_version,omitempty"`
	Elevated         bool                 `json:"elevated"`
	AdminRequired    bool                 `json:"admin_required"`
	Busy             bool                 `json:"busy"`
	Message          string               `json:"message"`
}

// Status resolves the libraries if needed and enumerates readers.
func (s *Service) Status() *Status {
	st := &Status{
		Platform: runtime.GOOS,
		Elevated: elevated(),
		Busy:     s.slot.Busy(),
	}

	lib, release, err := s.resolver.Acquire()
	if s.metrics != nil {
		s.metrics.SetLibraries(lib)
	}
	if err != nil {
		st.Status = StateUnavailable
		st.Message = "Scanner libraries not loaded"
		s.log.Warn("scanner.status.unavailable", "error", err)
		return st
	}
	defer release()
	st.LibraryTier = lib.Tier().String()
	if v, err := lib.Version(); err == nil {
		st.SDKVersion = v
	}

	devices, err := lib.Devices()
	if err != nil {
		st.Status = StateInitFailed
		st.Message = "Scanner initialization failed: " + string(scanner.KindOf(err))
		s.log.Warn("scanner.status.enumerate", "error", err)
		return st
	}
	if s.metrics != nil {
		s.metrics.SetDevices(len(devices))
	}
	st.DeviceCount = len(devices)
	st.Devices = devices
	if len(devices) == 0 {
		st.Status = StateNoDevices
		st.Message = "No fingerprint devices detected"
		return st
	}

	st.ScannerAvailable = true
	st.Status = StateReady
	st.AdminRequired = runtime.GOOS == "windows" && !st.Elevated
	st.Message = fmt.Sprintf("Found %d device(s). ", len(devices))
	if st.AdminRequired {
		st.Message += "Run as Administrator for full functionality."
	} else {
		st.Message += "Ready to scan."
	}
	return st
}

// LibraryInfo describes the current resolution.
type LibraryInfo struct {
	Tier           string    `json:"tier"`
	DevicePath     string    `json:"device_library"`
	ProcessingPath string    `json:"processing_library"`
	Version        string    `json:"sdk_version,omitempty"`
	LoadedAt       time.Time `json:"loaded_at"`
}

func libraryInfo(lib *scanner.ResolvedLibraries) *LibraryInfo {
	info := &LibraryInfo{
		Tier:           lib.Tier().String(),
		DevicePath:     lib.DevicePath(),
		ProcessingPath: lib.ProcessingPath(),
		LoadedAt:       lib.LoadedAt(),
	}
	if v, err := lib.Version(); err == nil {
		info.Version = v
	}
	return info
}

// Reload drops the cached libraries and resolves again. It is refused with
// DeviceBusy while a capture holds the reader.
func (s *Service) Reload() (*LibraryInfo, error) {
	release, err := s.slot.Reserve()
	if err != nil {
		return nil, err
	}
	defer release()

	lib, err := s.resolver.Reresolve(nil)
	if s.metrics != nil {
		s.metrics.SetLibraries(lib)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("scanner.reloaded", "tier", lib.Tier().String())
	return libraryInfo(lib), nil
}

// SelfTestReport is the outcome of the startup self-test.
type SelfTestReport struct {
	Libraries *LibraryInfo         `json:"libraries"`
	Devices   []scanner.DeviceInfo `json:"devices"`
}

// SelfTest resolves the libraries and enumerates readers. No session is
// opened. Finding no reader is not an error.
func (s *Service) SelfTest() (*SelfTestReport, error) {
	lib, release, err := s.resolver.Acquire()
	if s.metrics != nil {
		s.metrics.SetLibraries(lib)
	}
	if err != nil {
		return nil, err
	}
	defer release()
	devices, err := lib.Devices()
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetDevices(len(devices))
	}
	return &SelfTestReport{Libraries: libraryInfo(lib), Devices: devices}, nil
}

// History returns recent capture outcomes, newest first.
func (s *Service) History() []history.Entry { return s.history.Entries() }

// ClearHistory empties the capture log and returns how many entries it held.
func (s *Service) ClearHistory() int {
	n := s.history.Len()
	s.history.Clear()
	s.log.Info("capture.history.cleared", "entries", n)
	return n
}

// Close releases the vendor libraries.
func (s *Service) Close() {
	s.resolver.Teardown()
}
