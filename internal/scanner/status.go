package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Status is a return code of the vendor SDK.
type Status int32

// Vendor status codes. dpfpdd_* share the 0x05BA0000 facility with dpfj_*.
const (
	StatusSuccess              Status = 0
	StatusNotImplemented       Status = 0x05BA000A
	StatusFailure              Status = 0x05BA000B
	StatusNoData               Status = 0x05BA000C
	StatusMoreData             Status = 0x05BA000D
	StatusInvalidParameter     Status = 0x05BA0014
	StatusInvalidDevice        Status = 0x05BA0015
	StatusDeviceBusy           Status = 0x05BA001E
	StatusDeviceFailure        Status = 0x05BA001F
	StatusInvalidFID           Status = 0x05BA0065
	StatusTooSmallArea         Status = 0x05BA0066
	StatusInvalidFMD           Status = 0x05BA00C9
	StatusEnrollmentInProgress Status = 0x05BA012D
	StatusEnrollmentNotStarted Status = 0x05BA012E
	StatusEnrollmentNotReady   Status = 0x05BA012F
	StatusEnrollmentInvalidSet Status = 0x05BA0130
)

var statusNames = map[Status]string{
	StatusSuccess:              "success",
	StatusNotImplemented:       "not_implemented",
	StatusFailure:              "failure",
	StatusNoData:               "no_data",
	StatusMoreData:             "more_data",
	StatusInvalidParameter:     "invalid_parameter",
	StatusInvalidDevice:        "invalid_device",
	StatusDeviceBusy:           "device_busy",
	StatusDeviceFailure:        "device_failure",
	StatusInvalidFID:           "invalid_fid",
	StatusTooSmallArea:         "too_small_area",
	StatusInvalidFMD:           "invalid_fmd",
	StatusEnrollmentInProgress: "enrollment_in_progress",
	StatusEnrollmentNotStarted: "enrollment_not_started",
	StatusEnrollmentNotReady:   "enrollment_not_ready",
	StatusEnrollmentInvalidSet: "enrollment_invalid_set",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

// Known reports whether s is part of the enumerated vendor domain.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

// KnownStatuses returns every enumerated failure status in ascending order.
func KnownStatuses() []Status {
	codes := maps.Keys(statusNames)
	slices.Sort(codes)
	return slices.DeleteFunc(codes, func(s Status) bool { return s == StatusSuccess })
}

// Quality is the bit set reported by the device with every capture result.
type Quality uint32

const (
	QualityGood               Quality = 0
	QualityTimedOut           Quality = 1
	QualityCanceled           Quality = 1 << 1
	QualityNoFinger           Quality = 1 << 2
	QualityFakeFinger         Quality = 1 << 3
	QualityFingerTooLeft      Quality = 1 << 4
	QualityFingerTooRight     Quality = 1 << 5
	QualityFingerTooHigh      Quality = 1 << 6
	QualityFingerTooLow       Quality = 1 << 7
	QualityFingerOffCenter    Quality = 1 << 8
	QualityScanSkewed         Quality = 1 << 9
	QualityScanTooShort       Quality = 1 << 10
	QualityScanTooLong        Quality = 1 << 11
	QualityScanTooSlow        Quality = 1 << 12
	QualityScanTooFast        Quality = 1 << 13
	QualityScanWrongDirection Quality = 1 << 14
	QualityReaderDirty        Quality = 1 << 15

	qualityKnownMask Quality = 1<<16 - 1
)

var qualityNames = [...]string{
	"timed_out", "canceled", "no_finger", "fake_finger",
	"finger_too_left", "finger_too_right", "finger_too_high", "finger_too_low",
	"finger_off_center", "scan_skewed", "scan_too_short", "scan_too_long",
	"scan_too_slow", "scan_too_fast", "scan_wrong_direction", "reader_dirty",
}

func (q Quality) String() string {
	if q == QualityGood {
		return "good"
	}
	out := ""
	for rest := q; rest != 0; rest &= rest - 1 {
		bit := bits.TrailingZeros32(uint32(rest))
		name := fmt.Sprintf("bit%d", bit)
		if bit < len(qualityNames) {
			name = qualityNames[bit]
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	return out
}

// CallSite names the vendor call that produced a status.
type CallSite int

const (
	SiteEnumerate CallSite = iota
	SiteOpen
	SiteCaptureStart
	SiteCaptureWait
	SiteCancel
	SiteClose
	SiteProcess
)

// CallSites lists every call site the translator accepts.
func CallSites() []CallSite {
	return []CallSite{SiteEnumerate, SiteOpen, SiteCaptureStart, SiteCaptureWait, SiteCancel, SiteClose, SiteProcess}
}

func (c CallSite) String() string {
	switch c {
	case SiteEnumerate:
		return "enumerate"
	case SiteOpen:
		return "open"
	case SiteCaptureStart:
		return "capture-start"
	case SiteCaptureWait:
		return "capture-wait"
	case SiteCancel:
		return "cancel"
	case SiteClose:
		return "close"
	case SiteProcess:
		return "process"
	default:
		return fmt.Sprintf("site(%d)", int(c))
	}
}

// Classification is the translator's verdict on one vendor outcome.
type Classification struct {
	Kind      Kind
	Retryable bool
	Message   string
}

// OK reports whether the outcome was a success.
func (c Classification) OK() bool { return c.Kind == KindNone }

func classify(kind Kind, message string) Classification {
	if message == "" {
		message = kindMessages[kind]
	}
	return Classification{Kind: kind, Retryable: retryableKinds[kind], Message: message}
}

// Translate maps a vendor status returned at site to the error taxonomy.
// Every code has exactly one classification; codes outside the enumerated
// domain are fatal UnknownDeviceError.
func Translate(site CallSite, code Status) Classification {
	if site == SiteOpen && code.Known() && code != StatusSuccess {
		switch code {
		case StatusNoData, StatusInvalidDevice:
			return classify(KindNoDeviceFound, "the fingerprint reader is no longer available")
		case StatusDeviceBusy:
			return classify(KindDeviceBusy, "")
		}
		return classify(KindDeviceOpenFailed, "")
	}
	switch code {
	case StatusSuccess:
		return Classification{Kind: KindNone}
	case StatusNotImplemented:
		return classify(KindDriverFault, "the reader driver does not support this operation")
	case StatusFailure:
		return classify(KindDriverFault, "")
	case StatusNoData:
		switch site {
		case SiteEnumerate:
			return classify(KindNoDeviceFound, "")
		case SiteCaptureStart, SiteCaptureWait:
			return classify(KindFingerNotDetected, "")
		case SiteProcess:
			return classify(KindPoorQuality, "no usable fingerprint features were found")
		}
		return classify(KindDriverFault, "")
	case StatusMoreData, StatusInvalidParameter:
		return classify(KindDriverFault, "")
	case StatusInvalidDevice:
		if site == SiteEnumerate {
			return classify(KindNoDeviceFound, "the fingerprint reader is no longer available")
		}
		return classify(KindDeviceDisconnected, "")
	case StatusDeviceBusy:
		return classify(KindDeviceBusy, "")
	case StatusDeviceFailure:
		if site == SiteEnumerate {
			return classify(KindDriverFault, "")
		}
		return classify(KindDeviceDisconnected, "")
	case StatusInvalidFID:
		if site == SiteProcess {
			return classify(KindPoorQuality, "the captured image could not be processed")
		}
		return classify(KindDriverFault, "")
	case StatusTooSmallArea:
		return classify(KindPoorQuality, "the fingerprint area is too small, press the whole finger on the reader")
	case StatusInvalidFMD, StatusEnrollmentInProgress, StatusEnrollmentNotStarted,
		StatusEnrollmentNotReady, StatusEnrollmentInvalidSet:
		return classify(KindDriverFault, "")
	}
	return classify(KindUnknownDevice, "")
}

const qualityPositional = QualityFakeFinger | QualityFingerTooLeft | QualityFingerTooRight |
	QualityFingerTooHigh | QualityFingerTooLow | QualityFingerOffCenter | QualityScanSkewed |
	QualityScanTooShort | QualityScanTooLong | QualityScanTooSlow | QualityScanTooFast |
	QualityScanWrongDirection

// TranslateQuality classifies the quality flags of a capture that did not
// produce a usable sample.
func TranslateQuality(q Quality) Classification {
	switch {
	case q&^qualityKnownMask != 0:
		return classify(KindUnknownDevice, "")
	case q&QualityReaderDirty != 0:
		return classify(KindDriverFault, "the reader surface needs cleaning")
	case q&(QualityTimedOut|QualityCanceled) != 0:
		return classify(KindCaptureTimeout, "")
	case q&QualityNoFinger != 0:
		return classify(KindFingerNotDetected, "")
	case q&qualityPositional != 0:
		return classify(KindPoorQuality, qualityHint(q))
	}
	// Good quality without an image behaves like an empty read.
	return Translate(SiteCaptureWait, StatusNoData)
}

func qualityHint(q Quality) string {
	switch {
	case q&QualityFakeFinger != 0:
		return "the reader did not accept the finger, use a live finger"
	case q&(QualityFingerTooLeft|QualityFingerTooRight|QualityFingerTooHigh|QualityFingerTooLow|QualityFingerOffCenter) != 0:
		return "center your finger on the reader and try again"
	}
	return kindMessages[KindPoorQuality]
}

// TranslateDeadline classifies the caller's context ending during a capture.
// An external deadline is a timeout that must not be retried.
func TranslateDeadline(err error) Classification {
	msg := "the capture request deadline was exceeded"
	if errors.Is(err, context.Canceled) {
		msg = "the capture request was cancelled"
	}
	return Classification{Kind: KindCaptureTimeout, Retryable: false, Message: msg}
}

// TableEntry is one row of the translator's input domain.
type TableEntry struct {
	Site      CallSite
	Status    Status
	Kind      Kind
	Retryable bool
}

// Table expands the translator over every call site and known status.
func Table() []TableEntry {
	var out []TableEntry
	for _, site := range CallSites() {
		for _, code := range KnownStatuses() {
			c := Translate(site, code)
			out = append(out, TableEntry{Site: site, Status: code, Kind: c.Kind, Retryable: c.Retryable})
		}
	}
	return out
}

// enumerationSizing interprets the sizing pass of device enumeration. Only
// StatusMoreData with a non-zero count asks for a second pass; every other
// status is returned unchanged for the translator, so a failed enumeration
// never reads as "no readers".
func enumerationSizing(st Status, count uint32) (fetch bool, out Status) {
	if st == StatusMoreData && count > 0 {
		return true, st
	}
	return false, st
}
