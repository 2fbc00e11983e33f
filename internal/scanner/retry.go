package scanner

import (
	"context"
	"time"
)

// Defaults applied by Policy.normalize.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
)

// Policy bounds one logical capture request.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	return p
}

// Budget is the longest a request under p may occupy the reader.
func (p Policy) Budget(grace time.Duration) time.Duration {
	p = p.normalize()
	return time.Duration(p.MaxAttempts) * (p.AttemptTimeout + grace)
}

// RetryState tracks one request. It is discarded with the outcome.
type RetryState struct {
	Policy   Policy
	Attempt  int
	Elapsed  []time.Duration
	LastErr  *Error
	Started  time.Time
	Finished time.Time
}

// Controller runs captures under a retry policy against the single reader.
type Controller struct {
	resolver *Resolver
	slot     *Slot
	opts     options
}

// NewController wires a controller to the shared resolver and reader slot.
func NewController(resolver *Resolver, slot *Slot, opts ...Option) *Controller {
	return &Controller{resolver: resolver, slot: slot, opts: buildOptions(opts)}
}

// Slot returns the reader slot guarded by the controller.
func (c *Controller) Slot() *Slot { return c.slot }

// Resolver returns the library resolver.
func (c *Controller) Resolver() *Resolver { return c.resolver }

// Grace is the watchdog slack added to every attempt.
func (c *Controller) Grace() time.Duration { return c.opts.grace }

// CaptureWithRetry opens one session, then captures until a sample, a fatal
// error or the attempt budget. The session is closed exactly once on every
// path. Exhaustion returns KindRetriesExhausted carrying the last error.
func (c *Controller) CaptureWithRetry(ctx context.Context, policy Policy, opts CaptureOptions) (*Sample, error) {
	policy = policy.normalize()
	state := &RetryState{Policy: policy, Started: c.opts.clock.Now()}

	sample, err := c.run(ctx, state, opts)

	state.Finished = c.opts.clock.Now()
	kind := KindOf(err)
	c.opts.observer.CaptureFinished(kind, state.Attempt, state.Finished.Sub(state.Started))
	if err != nil {
		c.opts.logger.Warn("scanner.capture.failed",
			"kind", string(kind), "attempts", state.Attempt, "error", err)
		return nil, err
	}
	c.opts.logger.Info("scanner.capture.succeeded",
		"attempts", state.Attempt, "quality", sample.Quality.String(), "size", sample.Size)
	return sample, nil
}

func (c *Controller) run(ctx context.Context, state *RetryState, opts CaptureOptions) (*Sample, error) {
	lib, release, err := c.resolver.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	sess, err := c.slot.Open(ctx, lib)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.opts.logger.Warn("scanner.session.close", "error", err)
		}
	}()

	for state.Attempt < state.Policy.MaxAttempts {
		state.Attempt++
		start := c.opts.clock.Now()
		sample, err := Capture(ctx, sess, state.Policy.AttemptTimeout, opts)
		elapsed := c.opts.clock.Since(start)
		state.Elapsed = append(state.Elapsed, elapsed)
		c.opts.observer.AttemptFinished(state.Attempt, KindOf(err), elapsed)

		if err == nil {
			sample.Attempts = state.Attempt
			return sample, nil
		}
		se := asError(err)
		state.LastErr = se
		c.opts.logger.Info("scanner.capture.attempt",
			"attempt", state.Attempt, "max", state.Policy.MaxAttempts,
			"kind", string(se.Kind), "retryable", se.Retryable, "elapsed", elapsed)
		if se.Fatal() {
			se.Attempts = state.Attempt
			return nil, se
		}
	}

	return nil, &Error{
		Kind:     KindRetriesExhausted,
		Op:       "capture.retry",
		Message:  kindMessages[KindRetriesExhausted],
		Attempts: state.Attempt,
		Last:     state.LastErr,
		Err:      state.LastErr,
	}
}

func asError(err error) *Error {
	if se, ok := err.(*Error); ok {
		return se
	}
	return newError("capture", classify(KindUnknownDevice, ""), err)
}
