package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.OfferResult(OfferAnswered)
	m.OfferResult(OfferBusy)
	m.OfferResult(OfferBusy)
	m.TrackRouted("decode")
	m.RemoteCandidate(CandidateApplied)
	m.SetEndpoints(2)
	m.EndpointBytes(120)
	m.EndpointBytes(40)
	m.FilteredBytes(7)

	body := scrape(t, m)
	assert.Contains(t, body, `rtcsub_offers_total{result="busy"} 2`)
	assert.Contains(t, body, `rtcsub_tracks_routed_total{shape="decode"} 1`)
	assert.Contains(t, body, `rtcsub_remote_candidates_total{outcome="applied"} 1`)
	assert.Contains(t, body, "rtcsub_endpoints 2")
	assert.Contains(t, body, "rtcsub_endpoint_bytes_total 160")
	assert.Contains(t, body, "rtcsub_filter_bytes_total 7")
	assert.Contains(t, body, "rtcsub_memory_usage_bytes")
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OfferResult(OfferFailed)
		m.RemoteCandidate(CandidateDropped)
		m.SetFlowState(3)
		m.EndpointBytes(10)
	})
}
