package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bidroom"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
}

// StatsUpdater owns a set of integer metrics. Updates are applied by a
// single goroutine started with Run, so callers never race on a counter.
type StatsUpdater struct {
	vars       *expvar.Map
	registry   *prometheus.Registry
	updateChan chan *metricsUpdateReq
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(su.Snapshot())
}

// NewStatsUpdater creates a new stats updater instance and mounts its
// read-only views on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		registry:   prometheus.NewRegistry(),
		updateChan: make(chan *metricsUpdateReq, 512),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
	su.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the stats registry was created.",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	}))
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)

	for {
		select {
		case req := <-su.updateChan:
			su.apply(req)
		case <-su.quit:
			// drain what was queued before Stop
			for {
				select {
				case req := <-su.updateChan:
					su.apply(req)
				default:
					return
				}
			}
		}
	}
}

func (su *StatsUpdater) apply(req *metricsUpdateReq) {
	metric := su.vars.Get(req.name)
	if metric == nil {
		panic("metric not found: " + req.name)
	}

	metric.(*expvar.Int).Add(int64(req.value))
}

func (su *StatsUpdater) Incr(name string) {
	su.update(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.update(&metricsUpdateReq{name: name, value: -1})
}

// update is dropped once Stop has been called.
func (su *StatsUpdater) update(req *metricsUpdateReq) {
	select {
	case <-su.quit:
		return
	default:
	}

	select {
	case su.updateChan <- req:
	case <-su.quit:
	}
}

// RegisterMetric adds an integer metric. It must be called before Run.
func (su *StatsUpdater) RegisterMetric(name string) {
	v := new(expvar.Int)
	su.vars.Set(name, v)
	su.registry.MustRegister(prometheus.NewUntypedFunc(prometheus.UntypedOpts{
		Namespace: namespace,
		Name:      metricName(name),
		Help:      name + " as tracked by the connection layer.",
	}, func() float64 {
		return float64(v.Value())
	}))
}

// Value returns the current value of an integer metric.
func (su *StatsUpdater) Value(name string) int64 {
	if v, ok := su.vars.Get(name).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// Snapshot returns every metric keyed by name.
func (su *StatsUpdater) Snapshot() map[string]any {
	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})
	return data
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop applies pending updates and waits for the update goroutine to exit.
// Later Incr and Decr calls are ignored.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		close(su.quit)
	})
	<-su.done
}

// metricName turns "MessagesSent" into "messages_sent".
func metricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
