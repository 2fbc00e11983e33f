package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/kioskscanner/internal/scanner"
)

var _ scanner.Observer = (*Collector)(nil)

func TestObserverCounts(t *testing.T) {
	c := New()
	c.AttemptFinished(1, scanner.KindFingerNotDetected, time.Second)
	c.AttemptFinished(2, scanner.KindNone, time.Second)
	c.CaptureFinished(scanner.KindNone, 2, 2*time.Second)
	c.CaptureFinished(scanner.KindDeviceBusy, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Attempts.WithLabelValues("finger_not_detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Attempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Captures.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Captures.WithLabelValues("device_busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Busy))
}

func TestGauges(t *testing.T) {
	c := New()
	c.SetLibraries(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.LibrariesLoaded))
	c.SetDevices(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.DevicesPresent))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.CaptureFinished(scanner.KindPoorQuality, 3, time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `kiosk_scanner_capture_requests_total{outcome="poor_quality"} 1`)
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
