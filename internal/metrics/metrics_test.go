// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/tours", "200"))
	RecordAPIRequest("GET", "/api/v1/tours", 200, 10*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/tours", "200"))
	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

// histogramSnapshot returns the sample count and sum of a histogram child.
func histogramSnapshot(t *testing.T, o prometheus.Observer) (uint64, float64) {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	if !ok {
		t.Fatalf("%T is not a histogram", o)
	}
	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestRecordAPIRequestObservesLatency(t *testing.T) {
	o := APIRequestDuration.WithLabelValues("PUT", "/api/v1/uploads/{id}/chunks/{index}")
	count, sum := histogramSnapshot(t, o)
	RecordAPIRequest("PUT", "/api/v1/uploads/{id}/chunks/{index}", 204, 250*time.Millisecond)

	gotCount, gotSum := histogramSnapshot(t, o)
	if gotCount-count != 1 {
		t.Errorf("sample count delta = %d, want 1", gotCount-count)
	}
	if d := gotSum - sum; d < 0.249 || d > 0.251 {
		t.Errorf("sample sum delta = %v, want 0.25", d)
	}
}

func TestRecordDBQueryCountsErrors(t *testing.T) {
	c := DBQueryErrors.WithLabelValues("update", "tours")
	before := testutil.ToFloat64(c)
	RecordDBQuery("update", "tours", time.Millisecond, nil)
	RecordDBQuery("update", "tours", time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("error counter delta = %v, want 1", got)
	}
}

func TestRecordBreakerState(t *testing.T) {
	for state, want := range map[string]float64{"closed": 0, "half-open": 1, "open": 2} {
		RecordBreakerState("test", state)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test")); got != want {
			t.Errorf("state %s gauge = %v, want %v", state, got, want)
		}
	}
}
