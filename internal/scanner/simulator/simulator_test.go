package simulator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/scanner"
)

var simPaths = scanner.LibraryPaths{
	DevicePrimary:      `C:\Program Files\DigitalPersona\U.are.U SDK\Windows\Lib\x64\dpfpdd.dll`,
	ProcessingPrimary:  `C:\Program Files\DigitalPersona\U.are.U SDK\Windows\Lib\x64\dpfj.dll`,
	DeviceFallback:     `sdk\x64\dpfpdd.dll`,
	ProcessingFallback: `sdk\x64\dpfj.dll`,
}

func controller(t *testing.T, sdk *SDK) *scanner.Controller {
	t.Helper()
	r := scanner.NewResolver(simPaths, sdk, sdk.Bind)
	return scanner.NewController(r, scanner.NewSlot())
}

func TestParseOutcomes(t *testing.T) {
	got, err := ParseOutcomes("no_finger, OK,,timeout")
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeNoFinger, OutcomeOK, OutcomeTimeout}, got)

	_, err = ParseOutcomes("explode")
	assert.Error(t, err)
}

func TestSimulatedCaptureEndToEnd(t *testing.T) {
	sdk, err := New(Config{Script: []Outcome{OutcomeNoFinger, OutcomeOK}})
	require.NoError(t, err)
	c := controller(t, sdk)

	sample, err := c.CaptureWithRetry(context.Background(),
		scanner.Policy{MaxAttempts: 3, AttemptTimeout: time.Second},
		scanner.CaptureOptions{Template: scanner.TemplateANSI378, Finger: scanner.RightIndex})
	require.NoError(t, err)
	assert.Equal(t, 2, sample.Attempts)
	assert.Equal(t, uint32(320), sample.Width)
	assert.Equal(t, uint32(360), sample.Height)
	assert.Len(t, sample.Image, 320*360)
	assert.Equal(t, "FMR\x00", string(sample.Template[:4]))

	n := sdk.Counters()
	assert.Equal(t, 1, n.Opens)
	assert.Equal(t, 1, n.Closes)
	assert.Equal(t, 2, n.Captures)
}

func TestSimulatedFallbackResolution(t *testing.T) {
	sdk, err := New(Config{Unavailable: []string{simPaths.ProcessingPrimary}})
	require.NoError(t, err)
	r := scanner.NewResolver(simPaths, sdk, sdk.Bind)

	lib, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, scanner.TierFallback, lib.Tier())
	assert.Equal(t, []string{simPaths.DevicePrimary, simPaths.DeviceFallback, simPaths.ProcessingFallback}, sdk.Loaded())
}

func TestSimulatedTimeoutIsCancelled(t *testing.T) {
	sdk, err := New(Config{Script: []Outcome{OutcomeTimeout}})
	require.NoError(t, err)
	c := controller(t, sdk)

	_, err = c.CaptureWithRetry(context.Background(),
		scanner.Policy{MaxAttempts: 2, AttemptTimeout: 20 * time.Millisecond}, scanner.CaptureOptions{})
	require.ErrorIs(t, err, scanner.ErrRetriesExhausted)
	require.ErrorIs(t, err, scanner.ErrCaptureTimeout)
}

func TestSimulatedDisconnectIsFatal(t *testing.T) {
	sdk, err := New(Config{Script: []Outcome{OutcomeDisconnect, OutcomeOK}})
	require.NoError(t, err)
	c := controller(t, sdk)

	_, err = c.CaptureWithRetry(context.Background(), scanner.Policy{MaxAttempts: 5}, scanner.CaptureOptions{})
	require.ErrorIs(t, err, scanner.ErrDeviceDisconnected)
	assert.Equal(t, 1, sdk.Counters().Captures)
}

func TestSimulatedNoDevices(t *testing.T) {
	sdk, err := New(Config{Devices: []scanner.DeviceInfo{}})
	require.NoError(t, err)
	c := controller(t, sdk)

	_, err = c.CaptureWithRetry(context.Background(), scanner.Policy{}, scanner.CaptureOptions{})
	require.ErrorIs(t, err, scanner.ErrNoDeviceFound)
}

func TestTemplateRejectsTinyImage(t *testing.T) {
	sdk, err := New(Config{})
	require.NoError(t, err)
	_, st := sdk.CreateTemplate(scanner.TemplateRequest{Image: make([]byte, 100), Width: 10, Height: 10})
	assert.Equal(t, scanner.StatusTooSmallArea, st)
}

func TestSampleDirFixtures(t *testing.T) {
	dir := t.TempDir()
	data, err := imaging.EncodeBytes(Ridges(96, 80), imaging.FormatPNG)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	sdk, err := New(Config{SampleDir: dir})
	require.NoError(t, err)
	c := controller(t, sdk)

	sample, err := c.CaptureWithRetry(context.Background(), scanner.Policy{MaxAttempts: 1}, scanner.CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(96), sample.Width)
	assert.Equal(t, uint32(80), sample.Height)

	_, err = New(Config{SampleDir: t.TempDir()})
	assert.Error(t, err)
}

func TestSampleDirDataURLFixture(t *testing.T) {
	dir := t.TempDir()
	data, err := imaging.EncodeBytes(Ridges(64, 72), imaging.FormatPNG)
	require.NoError(t, err)
	url := imaging.DataURL(imaging.FormatPNG.MimeType(), data)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "left_index.txt"), []byte(url+"\n"), 0o644))

	sdk, err := New(Config{SampleDir: dir})
	require.NoError(t, err)

	sample, err := controller(t, sdk).CaptureWithRetry(context.Background(), scanner.Policy{MaxAttempts: 1}, scanner.CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(64), sample.Width)
	assert.Equal(t, uint32(72), sample.Height)
}
