package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/triage-ai/warden/internal/engine"
)

var _ engine.Recorder = (*Recorder)(nil)

type fakeQueue struct{ pending, dropped, failed int64 }

func (q *fakeQueue) Pending() int64 { return q.pending }
func (q *fakeQueue) Dropped() int64 { return q.dropped }
func (q *fakeQueue) Failed() int64  { return q.failed }

func TestRecorder_ObserveValidation(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveValidation(engine.SeverityHigh, engine.ActionBlock, false, 3*time.Millisecond)
	r.ObserveValidation(engine.SeverityHigh, engine.ActionBlock, true, 100*time.Microsecond)
	r.ObserveValidation(engine.SeveritySafe, engine.ActionAllow, false, time.Millisecond)

	if got := testutil.ToFloat64(r.validations.WithLabelValues("HIGH", "block")); got != 2 {
		t.Errorf("HIGH/block = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.validations.WithLabelValues("SAFE", "allow")); got != 1 {
		t.Errorf("SAFE/allow = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 2 {
		t.Errorf("latency series = %d, want 2 (hit and miss)", n)
	}
}

func TestRecorder_Counters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)
	r.ModuleFailure("url_validator", "timeout")
	r.EarlyExit()
	r.EarlyExit()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"cache hit", r.cacheLookups.WithLabelValues("hit"), 1},
		{"cache miss", r.cacheLookups.WithLabelValues("miss"), 2},
		{"module failure", r.moduleFailures.WithLabelValues("url_validator", "timeout"), 1},
		{"early exit", r.earlyExits, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecorder_RegisterQueue(t *testing.T) {
	r := New(prometheus.NewRegistry())
	q := &fakeQueue{pending: 4, dropped: 2}

	if err := r.RegisterQueue("events", q); err != nil {
		t.Fatalf("RegisterQueue: %v", err)
	}
	if err := r.RegisterQueue("events", q); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	q.pending = 7
	expected := `
# HELP warden_queue_pending Items accepted but not yet delivered.
# TYPE warden_queue_pending gauge
warden_queue_pending{queue="events"} 7
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "warden_queue_pending"); err != nil {
		t.Error(err)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New(nil)
	r.EarlyExit()
	r.HTTPRequest("/v1/validate", http.StatusOK)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"warden_early_exits_total 1", "warden_http_requests_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
