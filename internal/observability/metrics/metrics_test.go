package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequestCountsServerErrors(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("/chat", http.MethodPost))
	ObserveHTTPRequest("/chat", http.MethodPost, http.StatusOK, 10*time.Millisecond)
	ObserveHTTPRequest("/chat", http.MethodPost, http.StatusGatewayTimeout, time.Second)

	if got := testutil.ToFloat64(httpErrors.WithLabelValues("/chat", http.MethodPost)) - before; got != 1 {
		t.Fatalf("expected one server error, got %v", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("/chat", http.MethodPost, "504")); got < 1 {
		t.Fatalf("504 request not counted")
	}
}

func TestObserveAgentAndTools(t *testing.T) {
	ObserveRoute("banking")
	ObserveToolInvocation("transfer_funds", true, 5*time.Millisecond)
	ObserveEvent("transfer.completed", nil)

	if testutil.ToFloat64(agentRoutes.WithLabelValues("banking")) < 1 {
		t.Fatalf("route not counted")
	}
	if testutil.ToFloat64(toolInvocations.WithLabelValues("transfer_funds", "error")) < 1 {
		t.Fatalf("tool error not counted")
	}
	if testutil.ToFloat64(eventsProcessed.WithLabelValues("transfer.completed", "ok")) < 1 {
		t.Fatalf("event not counted")
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	ObserveRoute("advisory")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `iva_agent_routes_total{route="advisory"}`) {
		t.Fatalf("route series missing from exposition:\n%s", body)
	}
}
