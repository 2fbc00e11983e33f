package scanner

import (
	"context"
	"fmt"
	"time"
)

// CaptureOptions shape the sample beyond the raw image.
type CaptureOptions struct {
	Resolution uint32
	// Template is TemplateNone to skip feature extraction.
	Template TemplateFormat
	Finger   Finger
}

// Sample is a successful capture. It is not modified after it is returned.
type Sample struct {
	Image          []byte
	Width          uint32
	Height         uint32
	Resolution     uint32
	BPP            uint32
	Quality        Quality
	Score          uint32
	Size           int
	Template       []byte
	TemplateFormat TemplateFormat
	Finger         Finger
	Attempts       int
	CapturedAt     time.Time
	Device         DeviceInfo
}

type captureOutcome struct {
	raw    RawCapture
	status Status
}

// Capture runs one bounded capture attempt on an open session. It returns a
// Sample or an *Error; it never retries.
//
// The vendor call runs on its own goroutine. If it has not returned within
// timeout plus the configured grace, or ctx ends first, the capture is
// cancelled on the device. Capture always waits for the vendor call to
// return before it does.
func Capture(ctx context.Context, s *Session, timeout time.Duration, opts CaptureOptions) (*Sample, error) {
	const op = "capture"
	if err := ctx.Err(); err != nil {
		return nil, newError(op, TranslateDeadline(err), err)
	}
	h, err := s.captureHandle(ctx, op)
	if err != nil {
		return nil, err
	}

	clock := s.opts.clock
	done := make(chan captureOutcome, 1)
	go func() {
		raw, st := s.driver.Capture(h, CaptureRequest{Timeout: timeout, Resolution: opts.Resolution})
		done <- captureOutcome{raw: raw, status: st}
	}()

	watchdog := clock.NewTimer(timeout + s.opts.grace)
	defer watchdog.Stop()

	var out captureOutcome
	select {
	case out = <-done:
	case <-watchdog.Chan():
		s.opts.logger.Warn("scanner.capture.watchdog", "timeout", timeout, "grace", s.opts.grace)
		s.stopCapture(h, done)
		return nil, newError(op, classify(KindCaptureTimeout, ""), nil)
	case <-ctx.Done():
		s.opts.logger.Info("scanner.capture.interrupted", "error", ctx.Err())
		s.stopCapture(h, done)
		return nil, newError(op, TranslateDeadline(ctx.Err()), ctx.Err())
	}

	if out.status != StatusSuccess {
		e := vendorError(op, SiteCaptureStart, out.status)
		if e.Kind == KindDeviceDisconnected {
			s.markStale()
		}
		return nil, e
	}
	raw := out.raw
	if !raw.Good || len(raw.Image) == 0 {
		return nil, qualityError(op, raw.Quality)
	}
	if raw.BPP != 8 {
		return nil, newError(op, classify(KindDriverFault, fmt.Sprintf("unsupported image format: %d bpp", raw.BPP)), nil)
	}

	sample := &Sample{
		Image:          raw.Image,
		Width:          raw.Width,
		Height:         raw.Height,
		Resolution:     raw.Resolution,
		BPP:            raw.BPP,
		Quality:        raw.Quality,
		Score:          raw.Score,
		Size:           len(raw.Image),
		TemplateFormat: TemplateNone,
		Finger:         opts.Finger,
		CapturedAt:     clock.Now(),
		Device:         s.Device(),
	}
	if opts.Template == TemplateNone || opts.Template == 0 {
		return sample, nil
	}

	fmd, st := s.driver.CreateTemplate(TemplateRequest{
		Image:      raw.Image,
		Width:      raw.Width,
		Height:     raw.Height,
		Resolution: raw.Resolution,
		Finger:     opts.Finger,
		Format:     opts.Template,
	})
	if st != StatusSuccess {
		return nil, vendorError(op+".template", SiteProcess, st)
	}
	sample.Template = fmd
	sample.TemplateFormat = opts.Template
	return sample, nil
}

// recancelInterval spaces repeated cancels while an aborted vendor capture
// has not returned. A cancel that reaches the reader before the capture
// call is in flight is lost.
const recancelInterval = 250 * time.Millisecond

// stopCapture aborts the capture on h and waits for the vendor call to
// return, repeating the cancel until it does.
func (s *Session) stopCapture(h DeviceHandle, done <-chan captureOutcome) {
	if !s.abort(h) {
		<-done
		return
	}
	tick := s.opts.clock.NewTicker(recancelInterval)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.Chan():
			if st := s.driver.Cancel(h); st != StatusSuccess {
				s.opts.logger.Debug("scanner.capture.recancel", "status", st.String())
			}
		}
	}
}

func (s *Session) markStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}
