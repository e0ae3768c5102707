package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestReportOperationsCounter(t *testing.T) {
	before := testutil.ToFloat64(ReportOperationsTotal.WithLabelValues("get", "not_found"))
	ReportOperationsTotal.WithLabelValues("get", "not_found").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ReportOperationsTotal.WithLabelValues("get", "not_found")))
}
