package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameProcessed([]string{"dog", "dog", "person"})
	m.FrameProcessed(nil)
	m.ReportSent("dog")
	m.ReportSuppressed()
	m.ReportSuppressed()
	m.FrameFailed("detect")

	tests := []struct {
		name   string
		got    float64
		expect float64
	}{
		{"frames", testutil.ToFloat64(m.Frames), 2},
		{"relevant dog", testutil.ToFloat64(m.RelevantDetections.WithLabelValues("dog")), 2},
		{"relevant person", testutil.ToFloat64(m.RelevantDetections.WithLabelValues("person")), 1},
		{"sent dog", testutil.ToFloat64(m.ReportsSent.WithLabelValues("dog")), 1},
		{"suppressed", testutil.ToFloat64(m.ReportsSuppressed), 2},
		{"detect errors", testutil.ToFloat64(m.FrameErrors.WithLabelValues("detect")), 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.expect {
				t.Errorf("got %v, want %v", tc.got, tc.expect)
			}
		})
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.DetectDuration(30 * time.Millisecond)
	m.ReportSent("cat")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`piar_reports_sent_total{class="cat"} 1`,
		"piar_detect_duration_seconds_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
