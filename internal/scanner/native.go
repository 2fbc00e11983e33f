//go:build darwin || freebsd || linux || windows

package scanner

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Vendor ABI structs. Layouts follow dpfpdd.h / dpfj.h.

type dpVerInfo struct {
	Major       int32
	Minor       int32
	Maintenance int32
}

type dpVersion struct {
	Size uint32
	Lib  dpVerInfo
	API  dpVerInfo
}

type dpDevInfo struct {
	Size       uint32
	Name       [1024]byte
	Vendor     [128]byte
	Product    [128]byte
	Serial     [128]byte
	VendorID   uint16
	ProductID  uint16
	HWVersion  dpVerInfo
	FWVersion  dpVerInfo
	BCDRev     uint16
	Modality   uint32
	Technology uint32
}

type dpCaptureParam struct {
	Size      uint32
	ImageFmt  uint32
	ImageProc uint32
	ImageRes  uint32
}

type dpImageInfo struct {
	Size   uint32
	Width  uint32
	Height uint32
	Res    uint32
	BPP    uint32
}

type dpCaptureResult struct {
	Size    uint32
	Success int32
	Quality uint32
	Score   uint32
	Info    dpImageInfo
}

const (
	imgFmtPixelBuffer = 0
	imgProcDefault    = 0
	// CBEFF product owner for DigitalPersona.
	cbeffDigitalPersona = 0x00330000
	fmdInitialSize      = 4096
)

type nativeDriver struct {
	version          func(*dpVersion) int32
	exit             func() int32
	queryDevices     func(*uint32, *dpDevInfo) int32
	open             func(string, *uintptr) int32
	closeDev         func(uintptr) int32
	capture          func(uintptr, *dpCaptureParam, uint32, *dpCaptureResult, *uint32, *byte) int32
	cancel           func(uintptr) int32
	createFMDFromRaw func(*byte, uint32, uint32, uint32, uint32, int32, uint32, uint32, *byte, *uint32) int32

	mu        sync.Mutex
	imageSize map[DeviceHandle]uint32
}

// NativeBinder binds the vendor entry points with purego and initialises
// the device library.
func NativeBinder(ep EntryPoints) (d Driver, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register vendor functions: %v", r)
		}
	}()

	var initFn func() int32
	nd := &nativeDriver{imageSize: make(map[DeviceHandle]uint32)}
	purego.RegisterFunc(&nd.version, ep[SymDeviceVersion])
	purego.RegisterFunc(&initFn, ep[SymInit])
	purego.RegisterFunc(&nd.exit, ep[SymExit])
	purego.RegisterFunc(&nd.queryDevices, ep[SymQueryDevices])
	purego.RegisterFunc(&nd.open, ep[SymOpen])
	purego.RegisterFunc(&nd.closeDev, ep[SymClose])
	purego.RegisterFunc(&nd.capture, ep[SymCapture])
	purego.RegisterFunc(&nd.cancel, ep[SymCancel])
	purego.RegisterFunc(&nd.createFMDFromRaw, ep[SymCreateFMDFromRaw])

	if st := Status(initFn()); st != StatusSuccess {
		return nil, fmt.Errorf("dpfpdd_init: %s", st)
	}
	return nd, nil
}

func (d *nativeDriver) Version() (string, Status) {
	v := dpVersion{Size: uint32(unsafe.Sizeof(dpVersion{}))}
	if st := Status(d.version(&v)); st != StatusSuccess {
		return "", st
	}
	return fmt.Sprintf("%d.%d.%d", v.Lib.Major, v.Lib.Minor, v.Lib.Maintenance), StatusSuccess
}

func (d *nativeDriver) QueryDevices() ([]DeviceInfo, Status) {
	var count uint32
	st := Status(d.queryDevices(&count, nil))
	if fetch, st := enumerationSizing(st, count); !fetch {
		return nil, st
	}

	infos := make([]dpDevInfo, count)
	for i := range infos {
		infos[i].Size = uint32(unsafe.Sizeof(dpDevInfo{}))
	}
	st = Status(d.queryDevices(&count, &infos[0]))
	runtime.KeepAlive(infos)
	if st != StatusSuccess {
		return nil, st
	}

	out := make([]DeviceInfo, 0, count)
	for _, in := range infos[:count] {
		out = append(out, DeviceInfo{
			Name:      cString(in.Name[:]),
			Vendor:    cString(in.Vendor[:]),
			Product:   cString(in.Product[:]),
			Serial:    cString(in.Serial[:]),
			VendorID:  in.VendorID,
			ProductID: in.ProductID,
		})
	}
	return out, StatusSuccess
}

func (d *nativeDriver) Open(name string) (DeviceHandle, Status) {
	var dev uintptr
	if st := Status(d.open(name, &dev)); st != StatusSuccess {
		return 0, st
	}
	return DeviceHandle(dev), StatusSuccess
}

func (d *nativeDriver) Close(h DeviceHandle) Status {
	d.mu.Lock()
	delete(d.imageSize, h)
	d.mu.Unlock()
	return Status(d.closeDev(uintptr(h)))
}

func (d *nativeDriver) Cancel(h DeviceHandle) Status {
	return Status(d.cancel(uintptr(h)))
}

func (d *nativeDriver) Capture(h DeviceHandle, req CaptureRequest) (RawCapture, Status) {
	param := dpCaptureParam{
		Size:      uint32(unsafe.Sizeof(dpCaptureParam{})),
		ImageFmt:  imgFmtPixelBuffer,
		ImageProc: imgProcDefault,
		ImageRes:  req.Resolution,
	}
	res := dpCaptureResult{Size: uint32(unsafe.Sizeof(dpCaptureResult{}))}
	res.Info.Size = uint32(unsafe.Sizeof(dpImageInfo{}))

	size, st := d.bufferSize(h, &param, &res)
	if st != StatusSuccess {
		return RawCapture{}, st
	}

	buf := make([]byte, size)
	timeout := uint32(req.Timeout.Milliseconds())
	st = Status(d.capture(uintptr(h), &param, timeout, &res, &size, &buf[0]))
	runtime.KeepAlive(buf)
	if st != StatusSuccess {
		return RawCapture{}, st
	}
	if size < uint32(len(buf)) {
		buf = buf[:size]
	}
	return RawCapture{
		Good:       res.Success != 0,
		Quality:    Quality(res.Quality),
		Score:      res.Score,
		Width:      res.Info.Width,
		Height:     res.Info.Height,
		Resolution: res.Info.Res,
		BPP:        res.Info.BPP,
		Image:      buf,
	}, StatusSuccess
}

// bufferSize asks the reader for the image size once per handle.
func (d *nativeDriver) bufferSize(h DeviceHandle, param *dpCaptureParam, res *dpCaptureResult) (uint32, Status) {
	d.mu.Lock()
	size, ok := d.imageSize[h]
	d.mu.Unlock()
	if ok {
		return size, StatusSuccess
	}
	st := Status(d.capture(uintptr(h), param, 0, res, &size, nil))
	if st != StatusMoreData && st != StatusSuccess {
		return 0, st
	}
	if size == 0 {
		return 0, StatusFailure
	}
	d.mu.Lock()
	d.imageSize[h] = size
	d.mu.Unlock()
	return size, StatusSuccess
}

func (d *nativeDriver) CreateTemplate(req TemplateRequest) ([]byte, Status) {
	if len(req.Image) == 0 {
		return nil, StatusInvalidParameter
	}
	size := uint32(fmdInitialSize)
	for tries := 0; tries < 2; tries++ {
		fmd := make([]byte, size)
		st := Status(d.createFMDFromRaw(&req.Image[0], uint32(len(req.Image)),
			req.Width, req.Height, req.Resolution, int32(req.Finger),
			cbeffDigitalPersona, uint32(req.Format), &fmd[0], &size))
		runtime.KeepAlive(req.Image)
		runtime.KeepAlive(fmd)
		switch st {
		case StatusSuccess:
			return fmd[:size], StatusSuccess
		case StatusMoreData:
			continue
		default:
			return nil, st
		}
	}
	return nil, StatusMoreData
}

func (d *nativeDriver) Exit() Status {
	return Status(d.exit())
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
