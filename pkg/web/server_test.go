package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/protocol"
	"github.com/teslashibe/go-piar/pkg/report"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("piar_frames_processed_total 3\n"))
	})
	return NewServer(Options{
		Port:    "0",
		Camera:  camera.NewManager(camera.DefaultConfig()),
		Metrics: metrics,
	})
}

func doJSON(t *testing.T, s *Server, method, path, body string, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t)
	s.ThrottleState = func() report.State { return report.Cooling }

	var st protocol.StatusData
	doJSON(t, s, "GET", "/api/status", "", &st)
	if st.Label != Placeholder || st.Score != Placeholder {
		t.Errorf("initial fields: %q %q", st.Label, st.Score)
	}

	s.SetStatus("Running")
	s.SetRunning(true)
	s.Display("dog", "87")
	s.AddReport(report.Report{Class: "dog", Percent: 87})

	doJSON(t, s, "GET", "/api/status", "", &st)
	if st.Status != "Running" || !st.Running {
		t.Errorf("status: %+v", st)
	}
	if st.Label != "dog" || st.Score != "87" {
		t.Errorf("display: %q %q", st.Label, st.Score)
	}
	if st.Throttle != "cooling" || st.Reports != 1 || st.LastReport != "dog:87" {
		t.Errorf("report state: %+v", st)
	}
}

func TestServer_Reports(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < maxReports+5; i++ {
		s.AddReport(report.Report{Class: "cat", Percent: i % 100})
	}

	var reports []protocol.ReportData
	doJSON(t, s, "GET", "/api/reports", "", &reports)

	if len(reports) != maxReports {
		t.Fatalf("reports: got %d, want %d", len(reports), maxReports)
	}
	if reports[0].Percent != 5 {
		t.Errorf("oldest kept report: got %d, want 5", reports[0].Percent)
	}
	if reports[0].ID == "" || reports[0].ID == reports[1].ID {
		t.Error("reports need unique ids")
	}
	if s.Status().Reports != maxReports+5 {
		t.Errorf("sent count: got %d", s.Status().Reports)
	}
}

func TestServer_Camera(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		width  int
	}{
		{"preset with override", `{"preset":"low","quality":60}`, 200, 320},
		{"field update", `{"width":800,"height":600}`, 200, 800},
		{"invalid value", `{"width":5}`, 400, 800},
		{"bad json", `{`, 400, 800},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code := doJSON(t, s, "PUT", "/api/camera", tc.body, nil); code != tc.status {
				t.Errorf("status: got %d, want %d", code, tc.status)
			}
			var cfg camera.Config
			doJSON(t, s, "GET", "/api/camera", "", &cfg)
			if cfg.Width != tc.width {
				t.Errorf("width: got %d, want %d", cfg.Width, tc.width)
			}
		})
	}

	var presets map[string]camera.Config
	doJSON(t, s, "GET", "/api/camera/presets", "", &presets)
	if _, ok := presets[camera.PresetNight]; !ok {
		t.Errorf("presets missing night: %v", presets)
	}
}

func TestServer_CameraUnavailable(t *testing.T) {
	s := NewServer(Options{Port: "0"})
	if code := doJSON(t, s, "GET", "/api/camera", "", nil); code != 404 {
		t.Errorf("status: got %d, want 404", code)
	}
	if code := doJSON(t, s, "GET", "/metrics", "", nil); code != 404 {
		t.Errorf("metrics without handler: got %d, want 404", code)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "piar_frames_processed_total 3") {
		t.Errorf("metrics body: %s", body)
	}
}

func TestServer_WebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	if code := doJSON(t, s, "GET", "/ws/status", "", nil); code != 426 {
		t.Errorf("plain GET on websocket route: got %d, want 426", code)
	}
}

func TestServer_Display(t *testing.T) {
	s := newTestServer(t)

	if err := s.Display(Placeholder, Placeholder); err != nil {
		t.Fatalf("Display: %v", err)
	}
	s.Display("cat", "85")
	s.Display(Placeholder, Placeholder)

	st := s.Status()
	if st.Label != Placeholder || st.Score != Placeholder {
		t.Errorf("display should reset: %q %q", st.Label, st.Score)
	}
}
