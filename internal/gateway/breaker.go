package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// ErrAuthFailed marks a venue credential failure. Per the error-handling
// design this is fatal for the venue: the breaker for it trips permanently
// and every subsequent call short-circuits without reaching the network.
var ErrAuthFailed = errors.New("gateway: authentication failed")

// BreakerSettings configures one venue's circuit breaker.
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings mirrors the teacher's exchange circuit breaker
// thresholds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     5,
		FailureRatio:    0.6,
		OpenTimeout:     30 * time.Second,
		HalfOpenMaxReqs: 3,
		CountInterval:   10 * time.Second,
	}
}

// BreakerMetrics is the process-wide Prometheus instrumentation shared by
// every venue breaker.
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	globalBreakerMetrics *BreakerMetrics
	breakerMetricsOnce   sync.Once
)

func breakerMetrics() *BreakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "spotarb_venue_breaker_state",
				Help: "Per-venue circuit breaker state (0=closed, 1=open, 2=half_open)",
			}, []string{"venue"}),
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "spotarb_venue_breaker_requests_total",
				Help: "Total venue calls observed by the circuit breaker",
			}, []string{"venue", "result"}),
			failures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "spotarb_venue_breaker_failures_total",
				Help: "Total venue call failures observed by the circuit breaker",
			}, []string{"venue"}),
		}
	})
	return globalBreakerMetrics
}

// VenueBreaker wraps one venue's calls in a gobreaker.CircuitBreaker and
// adds a permanent-trip latch for authentication failures: once Do sees
// ErrAuthFailed, every subsequent call fails fast forever, independent of
// the breaker's own half-open recovery behaviour.
type VenueBreaker struct {
	venue   string
	cb      *gobreaker.CircuitBreaker
	metrics *BreakerMetrics

	mu          sync.Mutex
	authDisabled bool
}

// NewVenueBreaker builds a breaker for one venue with the given settings.
func NewVenueBreaker(venue string, settings BreakerSettings) *VenueBreaker {
	metrics := breakerMetrics()
	vb := &VenueBreaker{venue: venue, metrics: metrics}

	vb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        venue,
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			vb.updateMetric(to)
		},
	})
	vb.updateMetric(vb.cb.State())
	return vb
}

// Do runs fn through the breaker. A fn returning ErrAuthFailed permanently
// disables the venue: this call and all future ones return ErrAuthFailed
// immediately without invoking fn again.
func (vb *VenueBreaker) Do(fn func() error) error {
	vb.mu.Lock()
	disabled := vb.authDisabled
	vb.mu.Unlock()
	if disabled {
		return ErrAuthFailed
	}

	_, err := vb.cb.Execute(func() (any, error) {
		e := fn()
		vb.metrics.requests.WithLabelValues(vb.venue, resultLabel(e == nil)).Inc()
		if e != nil {
			vb.metrics.failures.WithLabelValues(vb.venue).Inc()
		}
		return nil, e
	})

	if errors.Is(err, ErrAuthFailed) {
		vb.mu.Lock()
		vb.authDisabled = true
		vb.mu.Unlock()
	}
	return err
}

// Disabled reports whether this venue has been permanently latched off by
// an earlier auth failure.
func (vb *VenueBreaker) Disabled() bool {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.authDisabled
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (vb *VenueBreaker) updateMetric(state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	vb.metrics.state.WithLabelValues(vb.venue).Set(v)
}
