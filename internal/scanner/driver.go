package scanner

import "time"

// DeviceHandle is the opaque vendor device pointer. Only Driver
// implementations and Session look at it.
type DeviceHandle uintptr

// DeviceInfo describes one enumerated reader.
type DeviceInfo struct {
	Name      string `json:"name"`
	Vendor    string `json:"vendor,omitempty"`
	Product   string `json:"product,omitempty"`
	Serial    string `json:"serial,omitempty"`
	VendorID  uint16 `json:"vendor_id,omitempty"`
	ProductID uint16 `json:"product_id,omitempty"`
}

// CaptureRequest parameterises one blocking vendor capture.
type CaptureRequest struct {
	Timeout    time.Duration
	Resolution uint32
}

// RawCapture is the vendor's capture result before classification.
type RawCapture struct {
	Good       bool
	Quality    Quality
	Score      uint32
	Width      uint32
	Height     uint32
	Resolution uint32
	BPP        uint32
	Image      []byte
}

// TemplateFormat selects the minutiae record built by the processing library.
type TemplateFormat uint32

const (
	TemplateNone     TemplateFormat = 0xFFFFFFFF
	TemplateANSI378  TemplateFormat = 0x001B0001
	TemplateISO19794 TemplateFormat = 0x01010001
)

func (f TemplateFormat) String() string {
	switch f {
	case TemplateANSI378:
		return "ansi378"
	case TemplateISO19794:
		return "iso19794"
	default:
		return "none"
	}
}

// ParseTemplateFormat accepts "ansi378", "iso19794" or "none".
func ParseTemplateFormat(s string) (TemplateFormat, bool) {
	switch s {
	case "ansi378", "ansi":
		return TemplateANSI378, true
	case "iso19794", "iso":
		return TemplateISO19794, true
	case "none", "":
		return TemplateNone, true
	}
	return TemplateNone, false
}

// TemplateRequest is the input of the processing library.
type TemplateRequest struct {
	Image      []byte
	Width      uint32
	Height     uint32
	Resolution uint32
	Finger     Finger
	Format     TemplateFormat
}

// Driver is the Go face of the two vendor libraries. Implementations return
// raw vendor statuses; classification happens in this package.
type Driver interface {
	// Version reports the device library version.
	Version() (string, Status)
	QueryDevices() ([]DeviceInfo, Status)
	Open(name string) (DeviceHandle, Status)
	Close(h DeviceHandle) Status
	// Capture blocks until a sample, a vendor timeout, or Cancel.
	Capture(h DeviceHandle, req CaptureRequest) (RawCapture, Status)
	// Cancel aborts an in-flight Capture; StatusNotImplemented when the
	// reader cannot cancel.
	Cancel(h DeviceHandle) Status
	CreateTemplate(req TemplateRequest) ([]byte, Status)
	// Exit releases the SDK; called once on teardown.
	Exit() Status
}
