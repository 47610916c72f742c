package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"loyalty/internal/adapters/http/perf"
)

func timedRouter(collector *perf.Collector, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(Timing(collector))
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/healthz", ok)
	r.Get("/admin/members/{memberID}/ledger", ok)
	return r
}

// TestTiming_GroupsByRoutePattern verifies member URLs share one perf path.
func TestTiming_GroupsByRoutePattern(t *testing.T) {
	collector := perf.NewCollector(100)
	h := timedRouter(collector, http.StatusOK)

	for _, id := range []string{"m1", "m2", "m3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/admin/members/"+id+"/ledger", nil))
	}

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths = %+v, want one grouped path", snap.SlowestPaths)
	}
	if got := snap.SlowestPaths[0].Path; got != "GET /admin/members/{memberID}/ledger" {
		t.Errorf("Path = %q", got)
	}
	if snap.SlowestPaths[0].Count != 3 {
		t.Errorf("Count = %d, want 3", snap.SlowestPaths[0].Count)
	}
}

// TestTiming_SkipsHealthz verifies health checks are not recorded.
func TestTiming_SkipsHealthz(t *testing.T) {
	collector := perf.NewCollector(100)
	rr := httptest.NewRecorder()
	timedRouter(collector, http.StatusOK).ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

	if collector.TotalRecorded() != 0 {
		t.Errorf("TotalRecorded = %d, want 0", collector.TotalRecorded())
	}
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// TestTiming_CapturesServerErrors verifies 5xx responses are marked failed.
func TestTiming_CapturesServerErrors(t *testing.T) {
	collector := perf.NewCollector(100)
	rr := httptest.NewRecorder()
	timedRouter(collector, http.StatusBadGateway).ServeHTTP(rr, httptest.NewRequest("GET", "/admin/members/x/ledger", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if snap.Requests.Failed != 1 {
		t.Errorf("Requests.Failed = %d, want 1", snap.Requests.Failed)
	}
}

// TestTiming_UnroutedPath verifies requests outside a chi router use the raw path.
func TestTiming_UnroutedPath(t *testing.T) {
	collector := perf.NewCollector(10)
	h := Timing(collector)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/raw", nil))

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 || snap.SlowestPaths[0].Path != "POST /raw" {
		t.Errorf("SlowestPaths = %+v, want POST /raw", snap.SlowestPaths)
	}
}

// TestTiming_NilCollector verifies the middleware works without a collector.
func TestTiming_NilCollector(t *testing.T) {
	rr := httptest.NewRecorder()
	timedRouter(nil, http.StatusOK).ServeHTTP(rr, httptest.NewRequest("GET", "/admin/members/x/ledger", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// BenchmarkTiming measures per-request overhead of the middleware.
func BenchmarkTiming(b *testing.B) {
	h := timedRouter(perf.NewCollector(perf.DefaultRingSize), http.StatusOK)
	req := httptest.NewRequest("GET", "/admin/members/m1/ledger", nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
