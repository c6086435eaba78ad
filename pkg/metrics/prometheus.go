package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTP middleware metrics, after github.com/zsais/go-gin-prometheus.

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

const defaultMetricPath = "/metrics"

// URLLabelFn maps a request to its "url" label. Use the route template to keep
// cardinality bounded.
type URLLabelFn func(c *gin.Context) string

type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec
	resSz  *prometheus.SummaryVec

	metricsPath string
	urlLabel    URLLabelFn
	log         *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	Subsystem   string
	MetricsPath string
	URLLabelFn  URLLabelFn
	Registerer  prometheus.Registerer
	Logger      *zap.SugaredLogger
}

func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		metricsPath: opts.MetricsPath,
		urlLabel:    opts.URLLabelFn,
		log:         opts.Logger,
	}
	if p.metricsPath == "" {
		p.metricsPath = defaultMetricPath
	}
	if p.urlLabel == nil {
		p.urlLabel = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return "unmatched"
		}
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p.reqCnt = NewMetric(reqCnt, opts.Subsystem).(*prometheus.CounterVec)
	p.reqDur = NewMetric(reqDur, opts.Subsystem).(*prometheus.HistogramVec)
	p.resSz = NewMetric(resSz, opts.Subsystem).(*prometheus.SummaryVec)
	collectors := map[*Metric]prometheus.Collector{reqCnt: p.reqCnt, reqDur: p.reqDur, resSz: p.resSz}
	for m, c := range collectors {
		if err := reg.Register(c); err != nil {
			p.log.Errorf("%s could not be registered in Prometheus, err=%v", m.Name, err)
		}
	}
	return p
}

// Use attaches the middleware to e. When listenAddress is set the metrics
// endpoint is served from a separate listener so scrapes stay out of the
// access log.
func (p *Prometheus) Use(e *gin.Engine, listenAddress string) *http.Server {
	e.Use(p.HandlerFunc())
	if listenAddress == "" {
		e.GET(p.metricsPath, gin.WrapH(promhttp.Handler()))
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(p.metricsPath, promhttp.Handler())
	srv := &http.Server{Addr: listenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Errorw("metrics listener stopped", "addr", listenAddress, "err", err)
		}
	}()
	return srv
}

func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.metricsPath {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.urlLabel(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(c.Writer.Size()))
	}
}
