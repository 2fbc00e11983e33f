package scanner

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeStep is one scripted Capture result. A blocking step waits until
// Cancel or Close is called on the handle, or returns at once when a cancel
// arrived before it started.
type fakeStep struct {
	raw    RawCapture
	status Status
	block  bool
}

func goodStep() fakeStep {
	return fakeStep{raw: RawCapture{
		Good: true, Quality: QualityGood, Score: 90,
		Width: 4, Height: 2, Resolution: 500, BPP: 8,
		Image: []byte{0, 32, 64, 96, 128, 160, 192, 224},
	}}
}

func qualityStep(q Quality) fakeStep {
	return fakeStep{raw: RawCapture{Good: false, Quality: q}}
}

func statusStep(st Status) fakeStep { return fakeStep{status: st} }

func blockStep() fakeStep { return fakeStep{block: true} }

type fakeDriver struct {
	mu sync.Mutex

	devices      []DeviceInfo
	queryStatus  Status
	openStatus   Status
	closeStatus  Status
	cancelStatus Status
	tmplStatus   Status
	steps        []fakeStep

	nextHandle DeviceHandle
	openHandle map[DeviceHandle]bool
	unblock    map[DeviceHandle]chan struct{}
	pending    map[DeviceHandle]bool

	opens, closes, cancels, captures, exits, templates int
}

func newFakeDriver(steps ...fakeStep) *fakeDriver {
	return &fakeDriver{
		devices:    []DeviceInfo{{Name: "usb:05ba:000a", Vendor: "DigitalPersona", Product: "U.are.U 4500"}},
		steps:      steps,
		openHandle: map[DeviceHandle]bool{},
		unblock:    map[DeviceHandle]chan struct{}{},
		pending:    map[DeviceHandle]bool{},
	}
}

func (d *fakeDriver) Version() (string, Status) { return "3.4.0", StatusSuccess }

func (d *fakeDriver) QueryDevices() ([]DeviceInfo, Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queryStatus != StatusSuccess {
		return nil, d.queryStatus
	}
	return append([]DeviceInfo(nil), d.devices...), StatusSuccess
}

func (d *fakeDriver) Open(name string) (DeviceHandle, Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openStatus != StatusSuccess {
		return 0, d.openStatus
	}
	d.opens++
	d.nextHandle++
	d.openHandle[d.nextHandle] = true
	d.unblock[d.nextHandle] = make(chan struct{})
	return d.nextHandle, StatusSuccess
}

func (d *fakeDriver) Close(h DeviceHandle) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	if ch, ok := d.unblock[h]; ok && d.openHandle[h] {
		close(ch)
	}
	delete(d.openHandle, h)
	return d.closeStatus
}

func (d *fakeDriver) Cancel(h DeviceHandle) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels++
	if d.cancelStatus != StatusSuccess {
		return d.cancelStatus
	}
	if ch, ok := d.unblock[h]; ok {
		close(ch)
		d.unblock[h] = make(chan struct{})
		d.pending[h] = true
	}
	return StatusSuccess
}

func (d *fakeDriver) Capture(h DeviceHandle, req CaptureRequest) (RawCapture, Status) {
	d.mu.Lock()
	d.captures++
	if !d.openHandle[h] {
		d.mu.Unlock()
		return RawCapture{}, StatusInvalidDevice
	}
	step := goodStep()
	if len(d.steps) > 0 {
		step = d.steps[0]
		if len(d.steps) > 1 {
			d.steps = d.steps[1:]
		}
	}
	ch := d.unblock[h]
	cancelled := d.pending[h]
	delete(d.pending, h)
	d.mu.Unlock()

	if step.block {
		if !cancelled {
			<-ch
		}
		d.mu.Lock()
		delete(d.pending, h)
		d.mu.Unlock()
		return RawCapture{Quality: QualityCanceled}, StatusSuccess
	}
	return step.raw, step.status
}

func (d *fakeDriver) CreateTemplate(req TemplateRequest) ([]byte, Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates++
	if d.tmplStatus != StatusSuccess {
		return nil, d.tmplStatus
	}
	return []byte(fmt.Sprintf("FMR:%s:%d", req.Format, len(req.Image))), StatusSuccess
}

func (d *fakeDriver) Exit() Status {
	d.mu.Lock()
	d.exits++
	d.mu.Unlock()
	return StatusSuccess
}

func (d *fakeDriver) counts() (opens, closes, cancels, captures int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes, d.cancels, d.captures
}

func (d *fakeDriver) exitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exits
}

type fakeLibrary struct {
	path    string
	missing map[string]bool
	closed  bool
	loader  *fakeLoader
}

func (l *fakeLibrary) Path() string { return l.path }

func (l *fakeLibrary) Lookup(sym string) (uintptr, error) {
	if l.missing[sym] {
		return 0, errors.New("symbol not found")
	}
	return uintptr(len(sym)) + 0x1000, nil
}

func (l *fakeLibrary) Close() error {
	l.loader.mu.Lock()
	defer l.loader.mu.Unlock()
	l.closed = true
	l.loader.closed = append(l.loader.closed, l.path)
	return nil
}

type fakeLoader struct {
	mu          sync.Mutex
	present     map[string]bool
	missingSyms map[string][]string
	loads       []string
	closed      []string
	searchDirs  []string
	dirErr      error
}

func newFakeLoader(paths ...string) *fakeLoader {
	l := &fakeLoader{present: map[string]bool{}, missingSyms: map[string][]string{}}
	for _, p := range paths {
		l.present[p] = true
	}
	return l
}

func (l *fakeLoader) Load(path string) (Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, path)
	if !l.present[path] {
		return nil, fmt.Errorf("%s: no such file", path)
	}
	missing := map[string]bool{}
	for _, s := range l.missingSyms[path] {
		missing[s] = true
	}
	return &fakeLibrary{path: path, missing: missing, loader: l}, nil
}

func (l *fakeLoader) AddSearchDir(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.searchDirs = append(l.searchDirs, dir)
	return l.dirErr
}

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads)
}

var testPaths = LibraryPaths{
	DevicePrimary:      "/opt/sdk/lib/libdpfpdd.so",
	ProcessingPrimary:  "/opt/sdk/lib/libdpfj.so",
	DeviceFallback:     "sdk/x64/libdpfpdd.so",
	ProcessingFallback: "sdk/x64/libdpfj.so",
}

func bindTo(d Driver) Binder {
	return func(EntryPoints) (Driver, error) { return d, nil }
}

// newTestController wires a controller over drv with every library present.
func newTestController(drv *fakeDriver, opts ...Option) *Controller {
	loader := newFakeLoader(testPaths.DevicePrimary, testPaths.ProcessingPrimary)
	resolver := NewResolver(testPaths, loader, bindTo(drv), opts...)
	return NewController(resolver, NewSlot(opts...), opts...)
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []Kind
	finals   []Kind
}

func (o *recordingObserver) AttemptFinished(_ int, k Kind, _ time.Duration) {
	o.mu.Lock()
	o.attempts = append(o.attempts, k)
	o.mu.Unlock()
}

func (o *recordingObserver) CaptureFinished(k Kind, _ int, _ time.Duration) {
	o.mu.Lock()
	o.finals = append(o.finals, k)
	o.mu.Unlock()
}
