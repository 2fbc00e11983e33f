// Package simulator is an in-process stand-in for the vendor fingerprint
// SDK. It implements scanner.Loader and scanner.Driver so the whole capture
// stack runs on machines without a reader.
package simulator

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/scanner"
)

// Outcome is one scripted capture result.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeNoFinger    Outcome = "no_finger"
	OutcomePoorQuality Outcome = "poor_quality"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeDisconnect  Outcome = "disconnect"
	OutcomeDriverFault Outcome = "driver_fault"
	OutcomeBusy        Outcome = "busy"
)

// ParseOutcomes reads a comma separated script such as "no_finger,ok".
func ParseOutcomes(s string) ([]Outcome, error) {
	var out []Outcome
	for _, part := range strings.Split(s, ",") {
		o := Outcome(strings.TrimSpace(strings.ToLower(part)))
		if o == "" {
			continue
		}
		switch o {
		case OutcomeOK, OutcomeNoFinger, OutcomePoorQuality, OutcomeTimeout,
			OutcomeDisconnect, OutcomeDriverFault, OutcomeBusy:
			out = append(out, o)
		default:
			return nil, fmt.Errorf("unknown simulator outcome %q", o)
		}
	}
	return out, nil
}

// Config describes the simulated reader.
type Config struct {
	Devices []scanner.DeviceInfo
	// Script is cycled, one outcome per capture. Empty means always OK.
	Script []Outcome
	// Latency is how long a non-timeout capture takes.
	Latency time.Duration
	// SampleDir holds PNG, JPEG, PGM or WSQ fingerprints, or .txt data URLs
	// of them, returned in rotation. Empty means synthetic ridges.
	SampleDir         string
	CancelUnsupported bool
	Width             uint32
	Height            uint32
	Resolution        uint32
	Clock             clockwork.Clock
	// Unavailable paths fail to load, to exercise fallback resolution.
	Unavailable []string
}

func (c *Config) setDefaults() {
	if c.Devices == nil {
		c.Devices = []scanner.DeviceInfo{{
			Name:      "sim:05ba:000a",
			Vendor:    "DigitalPersona",
			Product:   "U.are.U 4500 (simulated)",
			Serial:    "SIM-0001",
			VendorID:  0x05ba,
			ProductID: 0x000a,
		}}
	}
	if c.Width == 0 {
		c.Width = 320
	}
	if c.Height == 0 {
		c.Height = 360
	}
	if c.Resolution == 0 {
		c.Resolution = 500
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// Counters reports how the simulated SDK was driven.
type Counters struct {
	Opens    int
	Closes   int
	Cancels  int
	Captures int
	Exits    int
}

// SDK is the simulated vendor SDK.
type SDK struct {
	cfg Config

	mu       sync.Mutex
	step     int
	next     scanner.DeviceHandle
	handles  map[scanner.DeviceHandle]chan struct{}
	samples  []*image.Gray
	sampleAt int
	counters Counters
	loaded   []string
}

// New builds a simulated SDK, loading fixtures from cfg.SampleDir.
func New(cfg Config) (*SDK, error) {
	cfg.setDefaults()
	s := &SDK{cfg: cfg, handles: map[scanner.DeviceHandle]chan struct{}{}}
	if cfg.SampleDir != "" {
		samples, err := loadSamples(cfg.SampleDir)
		if err != nil {
			return nil, err
		}
		s.samples = samples
	}
	return s, nil
}

// Counters returns a snapshot of the call counters.
func (s *SDK) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// SetScript replaces the outcome script and restarts it.
func (s *SDK) SetScript(script ...Outcome) {
	s.mu.Lock()
	s.cfg.Script = script
	s.step = 0
	s.mu.Unlock()
}

// SetDevices replaces the enumerated readers.
func (s *SDK) SetDevices(devices []scanner.DeviceInfo) {
	s.mu.Lock()
	s.cfg.Devices = devices
	s.mu.Unlock()
}

// Bind is a scanner.Binder returning the simulator itself.
func (s *SDK) Bind(scanner.EntryPoints) (scanner.Driver, error) { return s, nil }

// Load accepts any configured path that is not marked unavailable.
func (s *SDK) Load(path string) (scanner.Library, error) {
	if path == "" {
		return nil, errors.New("empty library path")
	}
	for _, p := range s.cfg.Unavailable {
		if p == path {
			return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
		}
	}
	s.mu.Lock()
	s.loaded = append(s.loaded, path)
	s.mu.Unlock()
	return library(path), nil
}

// Loaded lists every path handed to Load, in order.
func (s *SDK) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loaded...)
}

// AddSearchDir accepts every directory.
func (s *SDK) AddSearchDir(string) error { return nil }

type library string

func (l library) Path() string { return string(l) }

func (l library) Lookup(symbol string) (uintptr, error) {
	// Any non-zero address; the simulator never calls through it.
	return uintptr(len(symbol)) + 0x10000, nil
}

func (l library) Close() error { return nil }

func (s *SDK) Version() (string, scanner.Status) { return "3.4.0-sim", scanner.StatusSuccess }

func (s *SDK) QueryDevices() ([]scanner.DeviceInfo, scanner.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scanner.DeviceInfo(nil), s.cfg.Devices...), scanner.StatusSuccess
}

func (s *SDK) Open(name string) (scanner.DeviceHandle, scanner.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.cfg.Devices {
		if d.Name == name {
			s.counters.Opens++
			s.next++
			s.handles[s.next] = make(chan struct{})
			return s.next, scanner.StatusSuccess
		}
	}
	return 0, scanner.StatusInvalidDevice
}

func (s *SDK) Close(h scanner.DeviceHandle) scanner.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Closes++
	ch, ok := s.handles[h]
	if !ok {
		return scanner.StatusInvalidDevice
	}
	close(ch)
	delete(s.handles, h)
	return scanner.StatusSuccess
}

func (s *SDK) Cancel(h scanner.DeviceHandle) scanner.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Cancels++
	if s.cfg.CancelUnsupported {
		return scanner.StatusNotImplemented
	}
	ch, ok := s.handles[h]
	if !ok {
		return scanner.StatusInvalidDevice
	}
	close(ch)
	s.handles[h] = make(chan struct{})
	return scanner.StatusSuccess
}

func (s *SDK) nextOutcome() Outcome {
	if len(s.cfg.Script) == 0 {
		return OutcomeOK
	}
	o := s.cfg.Script[s.step%len(s.cfg.Script)]
	s.step++
	return o
}

func (s *SDK) Capture(h scanner.DeviceHandle, req scanner.CaptureRequest) (scanner.RawCapture, scanner.Status) {
	s.mu.Lock()
	s.counters.Captures++
	stop, ok := s.handles[h]
	if !ok {
		s.mu.Unlock()
		return scanner.RawCapture{}, scanner.StatusInvalidDevice
	}
	outcome := s.nextOutcome()
	s.mu.Unlock()

	clock := s.cfg.Clock
	if outcome == OutcomeTimeout {
		select {
		case <-clock.After(req.Timeout):
			return scanner.RawCapture{Quality: scanner.QualityTimedOut}, scanner.StatusSuccess
		case <-stop:
			return scanner.RawCapture{Quality: scanner.QualityCanceled}, scanner.StatusSuccess
		}
	}
	if s.cfg.Latency > 0 {
		select {
		case <-clock.After(s.cfg.Latency):
		case <-stop:
			return scanner.RawCapture{Quality: scanner.QualityCanceled}, scanner.StatusSuccess
		}
	}

	switch outcome {
	case OutcomeNoFinger:
		return scanner.RawCapture{Quality: scanner.QualityNoFinger}, scanner.StatusSuccess
	case OutcomePoorQuality:
		return scanner.RawCapture{Quality: scanner.QualityFingerOffCenter | scanner.QualityScanTooFast}, scanner.StatusSuccess
	case OutcomeDisconnect:
		return scanner.RawCapture{}, scanner.StatusInvalidDevice
	case OutcomeDriverFault:
		return scanner.RawCapture{}, scanner.StatusFailure
	case OutcomeBusy:
		return scanner.RawCapture{}, scanner.StatusDeviceBusy
	}

	img := s.sample()
	res := req.Resolution
	if res == 0 {
		res = s.cfg.Resolution
	}
	b := img.Bounds()
	return scanner.RawCapture{
		Good:       true,
		Quality:    scanner.QualityGood,
		Score:      85,
		Width:      uint32(b.Dx()),
		Height:     uint32(b.Dy()),
		Resolution: res,
		BPP:        8,
		Image:      imaging.Pixels(img),
	}, scanner.StatusSuccess
}

func (s *SDK) sample() *image.Gray {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) > 0 {
		img := s.samples[s.sampleAt%len(s.samples)]
		s.sampleAt++
		return img
	}
	return Ridges(int(s.cfg.Width), int(s.cfg.Height))
}

// CreateTemplate returns a deterministic minutiae-record stand-in: an FMR
// header followed by the SHA-256 of the image.
func (s *SDK) CreateTemplate(req scanner.TemplateRequest) ([]byte, scanner.Status) {
	if len(req.Image) == 0 || req.Width == 0 || req.Height == 0 {
		return nil, scanner.StatusInvalidFID
	}
	if uint64(req.Width)*uint64(req.Height) < 64*64 {
		return nil, scanner.StatusTooSmallArea
	}
	sum := sha256.Sum256(req.Image)
	out := make([]byte, 0, 20+len(sum))
	out = append(out, 'F', 'M', 'R', 0, ' ', '2', '0', 0)
	out = binary.BigEndian.AppendUint32(out, uint32(req.Format))
	out = binary.BigEndian.AppendUint16(out, uint16(req.Width))
	out = binary.BigEndian.AppendUint16(out, uint16(req.Height))
	out = binary.BigEndian.AppendUint16(out, uint16(req.Resolution))
	out = append(out, byte(req.Finger), 0)
	out = append(out, sum[:]...)
	return out, scanner.StatusSuccess
}

func (s *SDK) Exit() scanner.Status {
	s.mu.Lock()
	s.counters.Exits++
	s.mu.Unlock()
	return scanner.StatusSuccess
}

// Ridges draws a synthetic whorl so previews look like a fingerprint.
func Ridges(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)*0.45
	rx, ry := float64(w)*0.42, float64(h)*0.47
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
			d := dx*dx + dy*dy
			if d > 1 {
				img.Pix[y*img.Stride+x] = 255
				continue
			}
			r := math.Hypot(float64(x)-cx, float64(y)-cy)
			v := 0.5 + 0.5*math.Sin(r/2.2+math.Atan2(dy, dx)*0.5)
			img.Pix[y*img.Stride+x] = uint8(40 + v*180)
		}
	}
	return img
}

func loadSamples(dir string) ([]*image.Gray, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sample dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*image.Gray
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		// .txt fixtures hold a data URL as posted by the kiosk frontend.
		if strings.EqualFold(filepath.Ext(name), ".txt") {
			if data, _, err = imaging.ParseDataURL(strings.TrimSpace(string(data))); err != nil {
				continue
			}
		}
		img, err := imaging.Decode(data)
		if err != nil {
			continue
		}
		out = append(out, img)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no decodable fingerprint images in %s", dir)
	}
	return out, nil
}
