package scanner

import (
	"context"
	"sync"
	"time"
)

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	StateClosed SessionState = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Slot is the single physical reader. At most one Session holds it.
type Slot struct {
	mu   sync.Mutex
	held bool
	opts options
}

// NewSlot returns a free slot.
func NewSlot(opts ...Option) *Slot {
	return &Slot{opts: buildOptions(opts)}
}

// Busy reports whether a session or a reservation holds the slot.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

func (s *Slot) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false
	}
	s.held = true
	return true
}

func (s *Slot) release() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
}

func busyError(op string) *Error {
	return newError(op, classify(KindDeviceBusy, ""), nil)
}

// Reserve holds the slot without opening the device, for maintenance such
// as re-resolving libraries. The returned func releases it exactly once.
func (s *Slot) Reserve() (func(), error) {
	if !s.claim() {
		return nil, busyError("slot.reserve")
	}
	var once sync.Once
	return func() { once.Do(s.release) }, nil
}

// Open enumerates readers and opens the first one. It fails fast with
// DeviceBusy while another session holds the slot.
func (s *Slot) Open(ctx context.Context, lib *ResolvedLibraries) (*Session, error) {
	const op = "session.open"
	if !s.claim() {
		return nil, busyError(op)
	}

	sess := &Session{
		slot:   s,
		driver: lib.driver,
		state:  StateOpening,
		opts:   s.opts,
	}
	if err := sess.connect(ctx, op); err != nil {
		sess.state = StateClosed
		s.release()
		return nil, err
	}
	sess.state = StateOpen
	sess.createdAt = s.opts.clock.Now()
	s.opts.logger.Debug("scanner.session.opened", "device", sess.device.Name)
	return sess, nil
}

// Session is an exclusive open connection to the reader.
type Session struct {
	_ noCopy

	mu        sync.Mutex
	slot      *Slot
	driver    Driver
	opts      options
	device    DeviceInfo
	handle    DeviceHandle
	hasHandle bool
	stale     bool
	state     SessionState
	createdAt time.Time
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreatedAt is when the session reached Open.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Device describes the opened reader.
func (s *Session) Device() DeviceInfo { return s.device }

// connect enumerates and opens the reader. Callers hold the slot.
func (s *Session) connect(ctx context.Context, op string) error {
	devices, st := s.driver.QueryDevices()
	if st != StatusSuccess {
		return vendorError(op, SiteEnumerate, st)
	}
	if len(devices) == 0 {
		return newError(op, classify(KindNoDeviceFound, ""), nil)
	}
	if err := ctx.Err(); err != nil {
		return newError(op, TranslateDeadline(err), err)
	}
	h, st := s.driver.Open(devices[0].Name)
	if st != StatusSuccess {
		return vendorError(op, SiteOpen, st)
	}
	s.device = devices[0]
	s.handle = h
	s.hasHandle = true
	s.stale = false
	return nil
}

// Close releases the device handle and the slot. Closing a closed session
// is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateClosing {
		return nil
	}
	s.state = StateClosing
	err := s.releaseHandleLocked("session.close")
	s.state = StateClosed
	s.slot.release()
	s.opts.logger.Debug("scanner.session.closed", "device", s.device.Name)
	if err != nil {
		return err
	}
	return nil
}

func (s *Session) releaseHandleLocked(op string) *Error {
	if !s.hasHandle {
		return nil
	}
	h := s.handle
	s.hasHandle = false
	s.handle = 0
	if st := s.driver.Close(h); st != StatusSuccess {
		return vendorError(op, SiteClose, st)
	}
	return nil
}

// captureHandle returns the handle for a new capture, reopening the device
// first if a previous attempt left it without a usable capture context.
func (s *Session) captureHandle(ctx context.Context, op string) (DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return 0, newError(op, classify(KindDriverFault, "capture requested on a session that is not open"), nil)
	}
	if !s.stale && s.hasHandle {
		return s.handle, nil
	}
	if err := s.releaseHandleLocked(op); err != nil {
		s.opts.logger.Warn("scanner.session.release_stale", "error", err)
	}
	s.opts.logger.Info("scanner.session.reopen", "device", s.device.Name)
	if err := s.connect(ctx, op); err != nil {
		s.state = StateClosed
		s.slot.release()
		return 0, err
	}
	return s.handle, nil
}

// abort stops an in-flight capture on h and reports whether the reader
// accepted the cancel. When it cannot cancel, the handle is closed and the
// session reopens before the next capture.
func (s *Session) abort(h DeviceHandle) bool {
	st := s.driver.Cancel(h)
	if st == StatusSuccess {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.logger.Info("scanner.capture.cancel_unavailable", "status", st.String())
	if s.hasHandle && s.handle == h {
		if err := s.releaseHandleLocked("capture.abort"); err != nil {
			s.opts.logger.Warn("scanner.session.release_aborted", "error", err)
		}
	}
	s.stale = true
	return false
}

// noCopy flags accidental copies of a Session under go vet.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
