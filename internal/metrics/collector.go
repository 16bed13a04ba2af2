package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/sim"
)

// Collector exports committed steps as Prometheus series. It implements
// sim.Observer and owns its registry so several worlds can be scraped from
// one process without colliding.
type Collector struct {
	registry *prometheus.Registry

	step       prometheus.Gauge
	population prometheus.Gauge
	bonds      prometheus.Gauge
	mass       prometheus.Gauge
	energy     prometheus.Gauge
	events     *prometheus.CounterVec
	guards     prometheus.Counter
	contacts   prometheus.Histogram
}

func NewCollector(world string) *Collector {
	labels := prometheus.Labels{"world": world}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cellsim",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &Collector{
		registry:   prometheus.NewRegistry(),
		step:       gauge("step", "Last committed step."),
		population: gauge("population", "Live cells."),
		bonds:      gauge("bonds", "Live adhesion bonds."),
		mass:       gauge("total_mass", "Sum of cell masses."),
		energy:     gauge("kinetic_energy", "Kinetic energy after the physics pass."),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cellsim",
			Name:        "events_total",
			Help:        "Scheduler events by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		guards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cellsim",
			Name:        "guards_total",
			Help:        "Numeric guards applied by the solver.",
			ConstLabels: labels,
		}),
		contacts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "cellsim",
			Name:        "contacts_per_step",
			Help:        "Overlapping cell pairs resolved per step.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	c.registry.MustRegister(c.step, c.population, c.bonds, c.mass, c.energy, c.events, c.guards, c.contacts)
	for _, k := range []division.EventKind{division.EventDivision, division.EventDeath, division.EventBondBroken} {
		c.events.WithLabelValues(k.String())
	}
	return c
}

func (c *Collector) OnStep(r sim.StepReport) {
	c.step.Set(float64(r.Step))
	c.population.Set(float64(r.Population))
	c.bonds.Set(float64(r.Bonds))
	c.mass.Set(r.TotalMass)
	c.energy.Set(r.Physics.KineticEnergy)
	for _, e := range r.Events {
		c.events.WithLabelValues(e.Kind.String()).Inc()
	}
	c.guards.Add(float64(r.Physics.Guards))
	c.contacts.Observe(float64(r.Physics.Contacts))
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
