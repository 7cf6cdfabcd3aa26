// Package metrics exposes a running sampler's ladder state to Prometheus,
// the way a long-lived production service would rather than leaving
// operators with nothing but log lines to watch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the gauges and counters a Sampler updates once per round.
type Recorder struct {
	registry *prometheus.Registry

	numLevels    prometheus.Gauge
	logX         prometheus.Gauge
	acceptRate   prometheus.Gauge
	particlesSet prometheus.Counter
	roundsDone   prometheus.Counter
	savesWritten prometheus.Counter
}

// NewRecorder builds a Recorder registered against its own private
// registry, so embedding it never collides with the default global one.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	namespace := "dns_sampler"

	r := &Recorder{
		registry: reg,
		numLevels: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "levels_total",
			Help:      "Number of levels currently in the ladder.",
		}),
		logX: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_x_current",
			Help:      "Log prior mass of the highest level reached so far.",
		}),
		acceptRate: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accept_rate",
			Help:      "Cumulative acceptance rate over all levels since the run started.",
		}),
		particlesSet: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "particles_persisted_total",
			Help:      "Total number of particle rows written to the store.",
		}),
		roundsDone: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of sampler rounds completed.",
		}),
		savesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Total number of save-interval rounds completed.",
		}),
	}
	return r
}

// Round records the ladder state after one completed round.
func (r *Recorder) Round(numLevels int, logX, acceptRate float64) {
	if r == nil {
		return
	}
	r.numLevels.Set(float64(numLevels))
	r.logX.Set(logX)
	r.acceptRate.Set(acceptRate)
	r.roundsDone.Inc()
}

// Save records one save-interval round, plus however many particle rows
// that round persisted to the store.
func (r *Recorder) Save(particlesWritten int) {
	if r == nil {
		return
	}
	r.savesWritten.Inc()
	r.particlesSet.Add(float64(particlesWritten))
}

// Handler returns the HTTP handler an operator points a Prometheus
// scrape config at.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
