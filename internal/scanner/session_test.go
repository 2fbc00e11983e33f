package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedFor(t *testing.T, drv *fakeDriver) *ResolvedLibraries {
	t.Helper()
	loader := newFakeLoader(testPaths.DevicePrimary, testPaths.ProcessingPrimary)
	lib, err := NewResolver(testPaths, loader, bindTo(drv)).Resolve()
	require.NoError(t, err)
	return lib
}

func TestSessionOpenClose(t *testing.T) {
	drv := newFakeDriver()
	slot := NewSlot()
	sess, err := slot.Open(context.Background(), resolvedFor(t, drv))
	require.NoError(t, err)

	assert.Equal(t, StateOpen, sess.State())
	assert.Equal(t, "usb:05ba:000a", sess.Device().Name)
	assert.False(t, sess.CreatedAt().IsZero())
	assert.True(t, slot.Busy())

	require.NoError(t, sess.Close())
	assert.Equal(t, StateClosed, sess.State())
	assert.False(t, slot.Busy())

	require.NoError(t, sess.Close(), "closing a closed session is a no-op")
	opens, closes, _, _ := drv.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
}

func TestSecondOpenFailsFastWithBusy(t *testing.T) {
	drv := newFakeDriver()
	lib := resolvedFor(t, drv)
	slot := NewSlot()

	first, err := slot.Open(context.Background(), lib)
	require.NoError(t, err)
	defer first.Close()

	_, err = slot.Open(context.Background(), lib)
	require.ErrorIs(t, err, ErrDeviceBusy)
	assert.False(t, IsRetryable(err))

	opens, _, _, _ := drv.counts()
	assert.Equal(t, 1, opens)
}

func TestSessionOpenNoDevices(t *testing.T) {
	drv := newFakeDriver()
	drv.devices = nil
	slot := NewSlot()

	_, err := slot.Open(context.Background(), resolvedFor(t, drv))
	require.ErrorIs(t, err, ErrNoDeviceFound)
	assert.False(t, slot.Busy(), "failed open releases the slot")
}

func TestSessionOpenVendorFailure(t *testing.T) {
	drv := newFakeDriver()
	drv.openStatus = StatusFailure
	slot := NewSlot()

	_, err := slot.Open(context.Background(), resolvedFor(t, drv))
	require.ErrorIs(t, err, ErrDeviceOpenFailed)
	assert.False(t, slot.Busy())

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, SiteOpen, se.Site)
	assert.Equal(t, StatusFailure, se.Code)
}

func TestSessionOpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slot := NewSlot()

	_, err := slot.Open(ctx, resolvedFor(t, newFakeDriver()))
	require.ErrorIs(t, err, ErrCaptureTimeout)
	assert.False(t, slot.Busy())
}

func TestSessionCloseReportsVendorError(t *testing.T) {
	drv := newFakeDriver()
	drv.closeStatus = StatusDeviceFailure
	slot := NewSlot()
	sess, err := slot.Open(context.Background(), resolvedFor(t, drv))
	require.NoError(t, err)

	err = sess.Close()
	require.ErrorIs(t, err, ErrDeviceDisconnected)
	assert.False(t, slot.Busy(), "slot is released even when the vendor close fails")
	assert.NoError(t, sess.Close())
}

func TestSlotReserve(t *testing.T) {
	slot := NewSlot()
	release, err := slot.Reserve()
	require.NoError(t, err)
	assert.True(t, slot.Busy())

	_, err = slot.Open(context.Background(), resolvedFor(t, newFakeDriver()))
	require.ErrorIs(t, err, ErrDeviceBusy)

	release()
	release()
	assert.False(t, slot.Busy())

	_, err = slot.Reserve()
	require.NoError(t, err)
	_, err = slot.Reserve()
	assert.ErrorIs(t, err, ErrDeviceBusy)
}
