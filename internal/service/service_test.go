package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/metrics"
	"github.com/jtejido/kioskscanner/internal/scanner"
	"github.com/jtejido/kioskscanner/internal/scanner/simulator"
)

var paths = scanner.LibraryPaths{
	DevicePrimary:      "/opt/digitalpersona/lib/libdpfpdd.so",
	ProcessingPrimary:  "/opt/digitalpersona/lib/libdpfj.so",
	DeviceFallback:     "sdk/x64/libdpfpdd.so",
	ProcessingFallback: "sdk/x64/libdpfj.so",
}

func newService(t *testing.T, cfg simulator.Config, opts Options) (*Service, *simulator.SDK) {
	t.Helper()
	sdk, err := simulator.New(cfg)
	require.NoError(t, err)
	svc := New(scanner.NewResolver(paths, sdk, sdk.Bind), opts)
	t.Cleanup(svc.Close)
	return svc, sdk
}

func TestRequestCapturePNG(t *testing.T) {
	m := metrics.New()
	svc, _ := newService(t, simulator.Config{Script: []simulator.Outcome{simulator.OutcomeNoFinger, simulator.OutcomeOK}},
		Options{Timeout: time.Second, Metrics: m})

	res, err := svc.RequestCapture(context.Background(), CaptureRequest{Finger: "left thumb"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "left_thumb", res.Finger)
	assert.Equal(t, imaging.FormatPNG, res.Format)
	assert.Equal(t, "image/png", res.MimeType)
	assert.True(t, bytes.HasPrefix(res.Sample, []byte("\x89PNG")))
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "ansi378", res.TemplateFormat)
	assert.NotEmpty(t, res.Template)
	assert.Equal(t, "good", res.Quality)

	img, err := imaging.Decode(res.Sample)
	require.NoError(t, err)
	assert.Equal(t, int(res.Width), img.Bounds().Dx())

	h := svc.History()
	require.Len(t, h, 1)
	assert.Equal(t, "ok", h[0].Status)
	assert.Equal(t, res.ID, h[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Captures.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("finger_not_detected")))
}

func TestRequestCaptureFormatsAndTemplate(t *testing.T) {
	svc, _ := newService(t, simulator.Config{}, Options{Timeout: time.Second})

	res, err := svc.RequestCapture(context.Background(), CaptureRequest{Format: "pgm", Template: "none"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(res.Sample, []byte("P5")))
	assert.Nil(t, res.Template)
	assert.Empty(t, res.TemplateFormat)
	assert.Equal(t, "right_index", res.Finger)

	res, err = svc.RequestCapture(context.Background(), CaptureRequest{Format: "raw"})
	require.NoError(t, err)
	assert.Len(t, res.Sample, int(res.Width*res.Height))
}

func TestRequestCaptureValidation(t *testing.T) {
	svc, sdk := newService(t, simulator.Config{}, Options{})

	for _, req := range []CaptureRequest{
		{Finger: "sixth"},
		{TimeoutSeconds: -1},
		{TimeoutSeconds: MaxTimeoutSeconds + 1},
		{MaxAttempts: MaxAttempts + 1},
		{Format: "tiff"},
		{Template: "xyz"},
	} {
		_, err := svc.RequestCapture(context.Background(), req)
		require.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
	assert.Zero(t, sdk.Counters().Opens, "invalid requests never touch the reader")
	assert.Empty(t, svc.History())
}

func TestRequestCaptureExhausted(t *testing.T) {
	svc, _ := newService(t, simulator.Config{Script: []simulator.Outcome{simulator.OutcomePoorQuality}},
		Options{Timeout: time.Second})

	_, err := svc.RequestCapture(context.Background(), CaptureRequest{MaxAttempts: 2})
	require.ErrorIs(t, err, scanner.ErrRetriesExhausted)

	h := svc.History()
	require.Len(t, h, 1)
	assert.Equal(t, "error", h[0].Status)
	assert.Equal(t, "retries_exhausted", h[0].Kind)
	assert.Equal(t, 2, h[0].Attempts)
}

func TestClearHistory(t *testing.T) {
	svc, _ := newService(t, simulator.Config{}, Options{Timeout: time.Second})
	for i := 0; i < 2; i++ {
		_, err := svc.RequestCapture(context.Background(), CaptureRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, svc.ClearHistory())
	assert.Empty(t, svc.History())
	assert.Zero(t, svc.ClearHistory())
}

func TestHealthDoesNotResolve(t *testing.T) {
	svc, sdk := newService(t, simulator.Config{}, Options{})

	h := svc.Health()
	assert.False(t, h.LibrariesLoaded)
	assert.False(t, h.DeviceEnumerable)
	assert.Empty(t, sdk.Loaded())

	_, err := svc.SelfTest()
	require.NoError(t, err)
	h = svc.Health()
	assert.True(t, h.LibrariesLoaded)
	assert.True(t, h.DeviceEnumerable)
	assert.Equal(t, 1, h.Devices)
	assert.Zero(t, sdk.Counters().Opens, "health never opens a session")
}

func TestStatusStates(t *testing.T) {
	svc, sdk := newService(t, simulator.Config{}, Options{})
	st := svc.Status()
	assert.Equal(t, StateReady, st.Status)
	assert.True(t, st.ScannerAvailable)
	assert.Equal(t, 1, st.DeviceCount)
	assert.Equal(t, "primary", st.LibraryTier)
	assert.Equal(t, "3.4.0-sim", st.SDKVersion)

	sdk.SetDevices(nil)
	st = svc.Status()
	assert.Equal(t, StateNoDevices, st.Status)
	assert.False(t, st.ScannerAvailable)

	missing, _ := newService(t, simulator.Config{Unavailable: []string{
		paths.DevicePrimary, paths.DeviceFallback,
	}}, Options{})
	st = missing.Status()
	assert.Equal(t, StateUnavailable, st.Status)
}

func TestSelfTestReportsFallback(t *testing.T) {
	svc, _ := newService(t, simulator.Config{Unavailable: []string{paths.DevicePrimary}}, Options{})
	report, err := svc.SelfTest()
	require.NoError(t, err)
	assert.Equal(t, "fallback", report.Libraries.Tier)
	assert.Equal(t, paths.DeviceFallback, report.Libraries.DevicePath)
	assert.Len(t, report.Devices, 1)
}

func TestReload(t *testing.T) {
	svc, sdk := newService(t, simulator.Config{}, Options{})
	_, err := svc.SelfTest()
	require.NoError(t, err)

	info, err := svc.Reload()
	require.NoError(t, err)
	assert.Equal(t, "primary", info.Tier)
	assert.Equal(t, 1, sdk.Counters().Exits, "old resolution is torn down")
}

func TestReloadRefusedWhileCapturing(t *testing.T) {
	svc, sdk := newService(t, simulator.Config{Script: []simulator.Outcome{simulator.OutcomeTimeout}},
		Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestCapture(ctx, CaptureRequest{MaxAttempts: 1, TimeoutSeconds: 60})
		done <- err
	}()
	require.Eventually(t, func() bool { return sdk.Counters().Captures == 1 }, 2*time.Second, time.Millisecond)

	_, err := svc.Reload()
	require.ErrorIs(t, err, scanner.ErrDeviceBusy)

	_, err = svc.RequestCapture(context.Background(), CaptureRequest{})
	require.ErrorIs(t, err, scanner.ErrDeviceBusy)

	cancel()
	err = <-done
	require.ErrorIs(t, err, scanner.ErrCaptureTimeout)
	assert.False(t, scanner.IsRetryable(err))
	assert.False(t, svc.Health().Busy)
}
