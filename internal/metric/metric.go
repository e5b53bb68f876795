// Package metric provides Prometheus metrics for the negotiation and routing core.
package metric

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Offer results.
const (
	OfferAnswered = "answered"
	OfferBusy     = "busy"
	OfferFailed   = "failed"
)

// Remote candidate outcomes.
const (
	CandidateApplied  = "applied"
	CandidateBuffered = "buffered"
	CandidateDropped  = "dropped"
	CandidateFailed   = "failed"
)

// Metrics holds the registered collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	offers           *prometheus.CounterVec
	tracksRouted     *prometheus.CounterVec
	remoteCandidates *prometheus.CounterVec
	filteredBytes    prometheus.Counter
	endpointBytes    prometheus.Counter
	endpoints        prometheus.Gauge
	flowState        prometheus.Gauge
	memoryUsage      prometheus.GaugeFunc
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtcsub_offers_total",
			Help: "Offers handled, by result.",
		}, []string{"result"}),
		tracksRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtcsub_tracks_routed_total",
			Help: "Raw tracks routed to an endpoint, by branch shape.",
		}, []string{"shape"}),
		remoteCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtcsub_remote_candidates_total",
			Help: "Remote ICE candidates, by outcome.",
		}, []string{"outcome"}),
		filteredBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtcsub_filter_bytes_total",
			Help: "Payload bytes passed through inserted filters.",
		}),
		endpointBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtcsub_endpoint_bytes_total",
			Help: "Payload bytes delivered to track endpoints.",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtcsub_endpoints",
			Help: "Currently exposed track endpoints.",
		}),
		flowState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtcsub_flow_state",
			Help: "Aggregate downstream flow state (0 ok, 1 not-negotiated, 2 flushing, 3 error).",
		}),
		memoryUsage: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rtcsub_memory_usage_bytes",
			Help: "Current heap allocation in bytes.",
		}, func() float64 {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return float64(ms.Alloc)
		}),
	}
	m.registry.MustRegister(
		m.offers,
		m.tracksRouted,
		m.remoteCandidates,
		m.filteredBytes,
		m.endpointBytes,
		m.endpoints,
		m.flowState,
		m.memoryUsage,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) OfferResult(result string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(result).Inc()
}

func (m *Metrics) TrackRouted(shape string) {
	if m == nil {
		return
	}
	m.tracksRouted.WithLabelValues(shape).Inc()
}

func (m *Metrics) RemoteCandidate(outcome string) {
	if m == nil {
		return
	}
	m.remoteCandidates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FilteredBytes(n int) {
	if m == nil {
		return
	}
	m.filteredBytes.Add(float64(n))
}

// EndpointBytes fits graph.Config.OnBytes.
func (m *Metrics) EndpointBytes(n int) {
	if m == nil {
		return
	}
	m.endpointBytes.Add(float64(n))
}

func (m *Metrics) SetEndpoints(n int) {
	if m == nil {
		return
	}
	m.endpoints.Set(float64(n))
}

func (m *Metrics) SetFlowState(state int) {
	if m == nil {
		return
	}
	m.flowState.Set(float64(state))
}
