package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	rtsup "github.com/amirpoya/Telegram-auto/internal/runtime/supervisor"
)

func testService(cfg Config, src Sources) *Service {
	return New(cfg, src, nil)
}

func doGet(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthzOK(t *testing.T) {
	s := testService(Config{Enabled: true}, Sources{})
	eng := s.buildEngine(s.cfg)

	w := doGet(t, eng, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["status"] != "ok" {
		t.Fatalf("healthz body = %v", body)
	}
	if _, ok := body["uptime_s"]; !ok {
		t.Fatal("healthz missing uptime_s")
	}
}

func TestStatusReportsSources(t *testing.T) {
	src := Sources{
		Poster: func() poster.Status {
			return poster.Status{State: "SCHEDULED", IntervalSecs: 60, CyclesRun: 3}
		},
		Recipients: func() int { return 2 },
		QueueDepth: func() int { return 5 },
	}
	s := testService(Config{Enabled: true}, src)
	eng := s.buildEngine(s.cfg)

	w := doGet(t, eng, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["recipients"] != float64(2) {
		t.Fatalf("recipients = %v", body["recipients"])
	}
	if body["notify_queue"] != float64(5) {
		t.Fatalf("notify_queue = %v", body["notify_queue"])
	}
	engine, ok := body["engine"].(map[string]any)
	if !ok {
		t.Fatalf("engine section = %v", body["engine"])
	}
	if engine["state"] != "SCHEDULED" {
		t.Fatalf("engine state = %v", engine["state"])
	}
	if engine["interval_s"] != float64(60) {
		t.Fatalf("engine interval = %v", engine["interval_s"])
	}
}

func TestStatusOmitsMissingSources(t *testing.T) {
	s := testService(Config{Enabled: true}, Sources{})
	eng := s.buildEngine(s.cfg)

	body := decodeJSON(t, doGet(t, eng, "/status", nil))
	for _, key := range []string{"engine", "recipients", "notify_queue"} {
		if _, ok := body[key]; ok {
			t.Fatalf("status carries %q without a source", key)
		}
	}
}

func TestGoroutinesListsSupervisors(t *testing.T) {
	sup := rtsup.New(context.Background())
	defer func() {
		sup.Cancel()
		_ = sup.Wait(context.Background())
	}()

	src := Sources{
		Supervisors: func() map[string]*rtsup.Supervisor {
			return map[string]*rtsup.Supervisor{"app": sup, "gone": nil}
		},
	}
	s := testService(Config{Enabled: true}, src)
	eng := s.buildEngine(s.cfg)

	body := decodeJSON(t, doGet(t, eng, "/goroutines", nil))
	if body["goroutines"] == float64(0) {
		t.Fatal("goroutine count missing")
	}
	snaps, ok := body["supervisors"].(map[string]any)
	if !ok {
		t.Fatalf("supervisors section = %v", body["supervisors"])
	}
	if _, ok := snaps["app"]; !ok {
		t.Fatalf("supervisor snapshot missing: %v", snaps)
	}
	if _, ok := snaps["gone"]; ok {
		t.Fatal("nil supervisor should be skipped")
	}
}

func TestPprofRequiresToken(t *testing.T) {
	cfg := Config{Enabled: true, Addr: "0.0.0.0:9", Pprof: true, Token: "sekret"}
	s := testService(cfg, Sources{})
	eng := s.buildEngine(s.cfg)

	w := doGet(t, eng, "/debug/pprof/", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("tokenless pprof status = %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("401 missing WWW-Authenticate")
	}

	w = doGet(t, eng, "/debug/pprof/?token=sekret", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query token status = %d", w.Code)
	}

	w = doGet(t, eng, "/debug/pprof/cmdline", map[string]string{"Authorization": "Bearer sekret"})
	if w.Code != http.StatusOK {
		t.Fatalf("bearer token status = %d", w.Code)
	}

	w = doGet(t, eng, "/debug/pprof/?token=wrong", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", w.Code)
	}
}

func TestPprofSkippedOnPublicBindWithoutToken(t *testing.T) {
	cfg := Config{Enabled: true, Addr: ":9", Pprof: true}
	s := testService(cfg, Sources{})
	eng := s.buildEngine(s.cfg)

	if w := doGet(t, eng, "/debug/pprof/", nil); w.Code != http.StatusNotFound {
		t.Fatalf("public tokenless pprof status = %d, want 404", w.Code)
	}
	// The plain routes stay up regardless.
	if w := doGet(t, eng, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestPprofAllowInsecureOverride(t *testing.T) {
	cfg := Config{Enabled: true, Addr: ":9", Pprof: true, AllowInsecure: true}
	s := testService(cfg, Sources{})
	eng := s.buildEngine(s.cfg)

	if w := doGet(t, eng, "/debug/pprof/", nil); w.Code != http.StatusOK {
		t.Fatalf("allow_insecure pprof status = %d", w.Code)
	}
}

func TestPprofLoopbackNoToken(t *testing.T) {
	cfg := Config{Enabled: true, Addr: "127.0.0.1:6060", Pprof: true}
	s := testService(cfg, Sources{})
	eng := s.buildEngine(s.cfg)

	if w := doGet(t, eng, "/debug/pprof/", nil); w.Code != http.StatusOK {
		t.Fatalf("loopback pprof status = %d", w.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:8080", true},
		{":8080", false},
		{"0.0.0.0:8080", false},
		{"192.168.1.4:80", false},
	}
	for _, tc := range cases {
		if got := isLoopbackAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not bind in time")
	return ""
}

func TestServerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Sources{}, nil)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := waitAddr(t, s)

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz over socket = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("addr after stop = %q", s.Addr())
	}

	// A stopped server can come back up.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitAddr(t, s)
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestReconfigureTogglesServer(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Enabled: false, Addr: "127.0.0.1:0"}, Sources{}, nil)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("disabled server bound a socket")
	}

	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	waitAddr(t, s)

	if err := s.Reconfigure(ctx, Config{Enabled: false, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("disable left the socket bound")
	}
}
