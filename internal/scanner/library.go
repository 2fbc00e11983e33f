package scanner

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Tier is the install location a library set was resolved from.
type Tier int

const (
	TierPrimary Tier = iota
	TierFallback
)

func (t Tier) String() string {
	if t == TierFallback {
		return "fallback"
	}
	return "primary"
}

// LibraryPaths locates the device-control and processing libraries.
type LibraryPaths struct {
	DevicePrimary      string
	DeviceFallback     string
	ProcessingPrimary  string
	ProcessingFallback string
	// RuntimeDirs are registered with the OS loader before any load.
	RuntimeDirs []string
}

func (p LibraryPaths) forTier(t Tier) (device, processing string) {
	if t == TierFallback {
		return p.DeviceFallback, p.ProcessingFallback
	}
	return p.DevicePrimary, p.ProcessingPrimary
}

// Entry points bound from the device-control library.
const (
	SymDeviceVersion = "dpfpdd_version"
	SymInit          = "dpfpdd_init"
	SymExit          = "dpfpdd_exit"
	SymQueryDevices  = "dpfpdd_query_devices"
	SymOpen          = "dpfpdd_open"
	SymClose         = "dpfpdd_close"
	SymCapture       = "dpfpdd_capture"
	SymCancel        = "dpfpdd_cancel"
)

// Entry points bound from the processing library.
const (
	SymProcessingVersion = "dpfj_version"
	SymCreateFMDFromRaw  = "dpfj_create_fmd_from_raw"
)

// DeviceSymbols and ProcessingSymbols are verified on every resolution.
var (
	DeviceSymbols = []string{
		SymDeviceVersion, SymInit, SymExit, SymQueryDevices,
		SymOpen, SymClose, SymCapture, SymCancel,
	}
	ProcessingSymbols = []string{SymProcessingVersion, SymCreateFMDFromRaw}
)

// Library is one loaded shared library.
type Library interface {
	Path() string
	Lookup(symbol string) (uintptr, error)
	Close() error
}

// Loader opens shared libraries.
type Loader interface {
	Load(path string) (Library, error)
	// AddSearchDir registers a directory the OS loader searches for the
	// libraries' own dependencies.
	AddSearchDir(dir string) error
}

// ErrSearchDirUnsupported is returned by loaders that cannot extend the
// dependency search path at runtime.
var ErrSearchDirUnsupported = errors.New("runtime search directories are not supported on this platform")

// EntryPoints maps a required symbol to its address.
type EntryPoints map[string]uintptr

// Binder turns verified entry points into a Driver.
type Binder func(EntryPoints) (Driver, error)

// SymbolError names a required entry point missing from a library.
type SymbolError struct {
	Library string
	Path    string
	Symbol  string
	Err     error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s (%s): missing entry point %s: %v", e.Library, e.Path, e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// ResolvedLibraries is an immutable, bound pair of vendor libraries.
type ResolvedLibraries struct {
	tier       Tier
	device     Library
	processing Library
	entries    EntryPoints
	driver     Driver
	loadedAt   time.Time
}

// Tier reports where both libraries came from.
func (r *ResolvedLibraries) Tier() Tier { return r.tier }

// DevicePath is the path the device-control library was loaded from.
func (r *ResolvedLibraries) DevicePath() string { return r.device.Path() }

// ProcessingPath is the path the processing library was loaded from.
func (r *ResolvedLibraries) ProcessingPath() string { return r.processing.Path() }

// LoadedAt is the resolution time.
func (r *ResolvedLibraries) LoadedAt() time.Time { return r.loadedAt }

// Version reports the vendor SDK version.
func (r *ResolvedLibraries) Version() (string, error) {
	v, st := r.driver.Version()
	if st != StatusSuccess {
		return "", vendorError("libraries.version", SiteEnumerate, st)
	}
	return v, nil
}

// Devices enumerates connected readers without opening a session.
func (r *ResolvedLibraries) Devices() ([]DeviceInfo, error) {
	devices, st := r.driver.QueryDevices()
	if st != StatusSuccess {
		return nil, vendorError("libraries.devices", SiteEnumerate, st)
	}
	return devices, nil
}

// Resolver loads and caches the vendor libraries.
type Resolver struct {
	mu sync.Mutex
	// inUse is read-held by every Acquire until its release. Teardown takes
	// it for writing, after mu, so the SDK is never released under a caller.
	inUse  sync.RWMutex
	paths  LibraryPaths
	loader Loader
	bind   Binder
	opts   options
	cached *ResolvedLibraries
}

// NewResolver returns a resolver; nothing is loaded until Resolve.
func NewResolver(paths LibraryPaths, loader Loader, bind Binder, opts ...Option) *Resolver {
	return &Resolver{paths: paths, loader: loader, bind: bind, opts: buildOptions(opts)}
}

// Resolve returns the cached libraries, loading them on first use.
func (r *Resolver) Resolve() (*ResolvedLibraries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached, nil
	}
	return r.resolveLocked()
}

// Acquire returns the libraries, loading them on first use, and keeps them
// alive until release is called. Reresolve and Teardown wait for every
// outstanding release.
func (r *Resolver) Acquire() (*ResolvedLibraries, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib := r.cached
	if lib == nil {
		var err error
		if lib, err = r.resolveLocked(); err != nil {
			return nil, nil, err
		}
	}
	return lib, r.hold(), nil
}

// AcquireCurrent is Acquire without loading. It returns nil when nothing is
// cached.
func (r *Resolver) AcquireCurrent() (*ResolvedLibraries, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return nil, func() {}
	}
	return r.cached, r.hold()
}

// hold is called with mu held; teardown cannot be waiting for inUse then.
func (r *Resolver) hold() func() {
	r.inUse.RLock()
	var once sync.Once
	return func() { once.Do(r.inUse.RUnlock) }
}

// Reresolve drops any cached resolution and resolves again. A non-nil paths
// replaces the configured locations first.
func (r *Resolver) Reresolve(paths *LibraryPaths) (*ResolvedLibraries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
	if paths != nil {
		r.paths = *paths
	}
	return r.resolveLocked()
}

// Current returns the cached libraries without triggering a load.
func (r *Resolver) Current() *ResolvedLibraries {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

// Loaded reports whether a resolution is cached.
func (r *Resolver) Loaded() bool { return r.Current() != nil }

// Teardown exits the SDK and releases both libraries.
func (r *Resolver) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
}

func (r *Resolver) teardownLocked() {
	res := r.cached
	if res == nil {
		return
	}
	r.cached = nil
	r.inUse.Lock()
	defer r.inUse.Unlock()
	if st := res.driver.Exit(); st != StatusSuccess {
		r.opts.logger.Warn("scanner.sdk.exit", "status", st.String())
	}
	closeLibraries(r.opts, res.processing, res.device)
	r.opts.logger.Info("scanner.libraries.released", "tier", res.tier.String())
}

func (r *Resolver) resolveLocked() (*ResolvedLibraries, error) {
	r.registerRuntimeDirs()

	var tierErrs []error
	for _, tier := range []Tier{TierPrimary, TierFallback} {
		res, err := r.resolveTier(tier)
		if err != nil {
			r.opts.logger.Warn("scanner.libraries.tier_failed", "tier", tier.String(), "error", err)
			tierErrs = append(tierErrs, err)
			continue
		}
		r.cached = res
		r.opts.logger.Info("scanner.libraries.resolved",
			"tier", tier.String(),
			"device", res.device.Path(),
			"processing", res.processing.Path())
		return res, nil
	}
	return nil, resolutionError("resolver.resolve", "", errors.Join(tierErrs...))
}

func (r *Resolver) resolveTier(tier Tier) (*ResolvedLibraries, error) {
	devicePath, processingPath := r.paths.forTier(tier)
	if devicePath == "" || processingPath == "" {
		return nil, fmt.Errorf("%s tier: library paths not configured", tier)
	}

	device, err := r.loader.Load(devicePath)
	if err != nil {
		return nil, fmt.Errorf("%s tier: load device library %s: %w", tier, devicePath, err)
	}
	// The processing library must come from the same tier as the device library.
	processing, err := r.loader.Load(processingPath)
	if err != nil {
		closeLibraries(r.opts, device)
		return nil, fmt.Errorf("%s tier: load processing library %s: %w", tier, processingPath, err)
	}

	entries := make(EntryPoints, len(DeviceSymbols)+len(ProcessingSymbols))
	if err := lookupAll(entries, "device library", device, DeviceSymbols); err != nil {
		closeLibraries(r.opts, processing, device)
		return nil, fmt.Errorf("%s tier: %w", tier, err)
	}
	if err := lookupAll(entries, "processing library", processing, ProcessingSymbols); err != nil {
		closeLibraries(r.opts, processing, device)
		return nil, fmt.Errorf("%s tier: %w", tier, err)
	}

	driver, err := r.bind(entries)
	if err != nil {
		closeLibraries(r.opts, processing, device)
		return nil, fmt.Errorf("%s tier: bind entry points: %w", tier, err)
	}

	return &ResolvedLibraries{
		tier:       tier,
		device:     device,
		processing: processing,
		entries:    entries,
		driver:     driver,
		loadedAt:   r.opts.clock.Now(),
	}, nil
}

func (r *Resolver) registerRuntimeDirs() {
	for _, dir := range r.paths.RuntimeDirs {
		if dir == "" {
			continue
		}
		err := r.loader.AddSearchDir(dir)
		if err == nil {
			r.opts.logger.Debug("scanner.runtime_dir.registered", "dir", dir)
			return
		}
		if errors.Is(err, ErrSearchDirUnsupported) {
			r.opts.logger.Debug("scanner.runtime_dir.unsupported", "dir", dir)
			return
		}
		r.opts.logger.Debug("scanner.runtime_dir.skipped", "dir", dir, "error", err)
	}
}

func lookupAll(dst EntryPoints, name string, lib Library, symbols []string) error {
	for _, sym := range symbols {
		addr, err := lib.Lookup(sym)
		if err == nil && addr == 0 {
			err = errors.New("null address")
		}
		if err != nil {
			return &SymbolError{Library: name, Path: lib.Path(), Symbol: sym, Err: err}
		}
		dst[sym] = addr
	}
	return nil
}

func closeLibraries(o options, libs ...Library) {
	for _, lib := range libs {
		if err := lib.Close(); err != nil {
			o.logger.Warn("scanner.library.close", "path", lib.Path(), "error", err)
		}
	}
}
