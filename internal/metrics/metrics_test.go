package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRefit(t *testing.T) {
	okBefore := testutil.ToFloat64(RefitsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(RefitsTotal.WithLabelValues("error"))

	RecordRefit(20*time.Millisecond, nil)
	RecordRefit(5*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(RefitsTotal.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok refits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RefitsTotal.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("error refits delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/stats", "200"))
	RecordAPIRequest("GET", "/api/stats", 200, time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/stats", "200")) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}

func TestSetStale(t *testing.T) {
	SetStale(true)
	if got := testutil.ToFloat64(ModelStale); got != 1 {
		t.Errorf("stale gauge = %v, want 1", got)
	}
	SetStale(false)
	if got := testutil.ToFloat64(ModelStale); got != 0 {
		t.Errorf("stale gauge = %v, want 0", got)
	}
}
