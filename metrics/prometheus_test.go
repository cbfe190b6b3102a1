package metrics

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/logging"
)

func TestEngineCountersAreRegistered(t *testing.T) {
	m := NewMetrics("riskengine-test")
	m.ScenariosGenerated.WithLabelValues("path").Add(3)
	m.CubeCellsWritten.WithLabelValues("npv").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ScenariosGenerated.WithLabelValues("path")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "risk_scenarios_generated_total"))
	assert.True(t, strings.Contains(body, "risk_cube_cells_written_total"))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestLogSinkErrorsCounted(t *testing.T) {
	m := NewMetrics("riskengine-test")
	t.Cleanup(func() { logging.OnSinkError(nil) })

	var buf bytes.Buffer
	l := logging.NewWithSinks("riskengine", "test", logging.NewSink("file", brokenWriter{}, "json"), logging.NewSink("stdout", &buf, "json"))
	l.Info("first")
	l.Warn("second")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LogSinkErrors.WithLabelValues("file")))
	assert.Zero(t, testutil.ToFloat64(m.LogSinkErrors.WithLabelValues("stdout")))
	assert.NotZero(t, buf.Len())
}
