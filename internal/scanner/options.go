package scanner

import (
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCaptureGrace is how long past the vendor timeout a capture may run
// before the watchdog cancels it.
const DefaultCaptureGrace = 2 * time.Second

// Observer receives capture telemetry.
type Observer interface {
	AttemptFinished(attempt int, kind Kind, elapsed time.Duration)
	CaptureFinished(kind Kind, attempts int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(int, Kind, time.Duration) {}
func (nopObserver) CaptureFinished(Kind, int, time.Duration) {}

type options struct {
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer
	grace    time.Duration
}

// Option configures a Resolver, Slot or Controller.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver attaches capture telemetry.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCaptureGrace sets the watchdog slack added to every attempt timeout.
func WithCaptureGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.grace = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: nopObserver{},
		grace:    DefaultCaptureGrace,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
