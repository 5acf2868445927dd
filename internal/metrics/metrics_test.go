package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
)

func TestRecordRequestLabelsNumericCode(t *testing.T) {
	EnableMetrics()

	testCases := []struct {
		route string
		code  int
		label string
	}{
		{route: "/check_domains", code: http.StatusOK, label: "200"},
		{route: "/check_domains", code: http.StatusConflict, label: "409"},
		{route: "/cancel", code: http.StatusNotFound, label: "404"},
	}

	for _, tc := range testCases {
		counter := GetMetrics().HTTPRequestsTotal.WithLabelValues(tc.route, tc.label)
		before := testutil.ToFloat64(counter)
		RecordRequest(tc.route, tc.code)
		assert.Equal(t, testutil.ToFloat64(counter), before+1, "route %s code %d", tc.route, tc.code)
	}

	assert.Equal(t, testutil.ToFloat64(GetMetrics().HTTPRequestsTotal.WithLabelValues("/check_domains", "Conflict")), 0.0)
}
