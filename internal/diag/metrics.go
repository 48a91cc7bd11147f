package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: 进程内 Prometheus 指标（独立 Registry，不占用默认全局注册表）。
// 名称：
// - smexplorer_op_total{comp,stage,result}
// - smexplorer_error_total{comp,code}
// - smexplorer_op_duration_seconds{comp,stage}
// - smexplorer_bundle_bytes{bundle,kind}       kind=total|unmapped
// - smexplorer_source_bytes{source}
type Metrics struct {
	reg *prometheus.Registry

	opTotal     *prometheus.CounterVec
	errorTotal  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	bundleBytes *prometheus.GaugeVec
	sourceBytes *prometheus.GaugeVec
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		opTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smexplorer_op_total",
				Help: "Total number of pipeline operations",
			},
			[]string{"comp", "stage", "result"},
		),
		errorTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smexplorer_error_total",
				Help: "Total number of classified errors",
			},
			[]string{"comp", "code"},
		),
		opDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smexplorer_op_duration_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"comp", "stage"},
		),
		bundleBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smexplorer_bundle_bytes",
				Help: "Bundle size in bytes by kind (total, unmapped)",
			},
			[]string{"bundle", "kind"},
		),
		sourceBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smexplorer_source_bytes",
				Help: "Bytes attributed to each original source in the final report",
			},
			[]string{"source"},
		),
	}
}

// Registry 返回底层注册表（供导出/测试）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile 以 node_exporter textfile 格式原子写出全部指标。
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

var (
	metricsMu sync.RWMutex
	metrics   = NewMetrics()
)

// DefaultMetrics 返回进程级指标实例。
func DefaultMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

// ResetMetrics 以全新实例替换进程级指标（测试与多次运行隔离用）。
func ResetMetrics() *Metrics {
	m := NewMetrics()
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
	return m
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	DefaultMetrics().opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	DefaultMetrics().errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	DefaultMetrics().opDuration.WithLabelValues(comp, stage).Observe(float64(durMS) / 1000)
}

// SetBundleSize 记录单个 bundle 的总字节与未归属字节。
func SetBundleSize(bundle string, total, unmapped int64) {
	m := DefaultMetrics()
	m.bundleBytes.WithLabelValues(bundle, "total").Set(float64(total))
	m.bundleBytes.WithLabelValues(bundle, "unmapped").Set(float64(unmapped))
}

// SetSourceSizes 以最终报告覆盖来源字节数。
func SetSourceSizes(files map[string]int64) {
	m := DefaultMetrics()
	m.sourceBytes.Reset()
	for src, n := range files {
		m.sourceBytes.WithLabelValues(src).Set(float64(n))
	}
}
