package metric

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// MetricItem - 一个独立的metric模块对应一个MetricItem
type MetricItem interface {
	JSONString() string
}

const sampleSize = 1028

// RegistryItem 基于go-metrics registry的MetricItem
// 只使用counter/gauge/histogram，meter和timer会启动常驻的goroutine
type RegistryItem struct {
	registry metrics.Registry
}

func NewRegistryItem() *RegistryItem {
	return &RegistryItem{registry: metrics.NewRegistry()}
}

func (ri *RegistryItem) Registry() metrics.Registry {
	return ri.registry
}

func (ri *RegistryItem) Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, ri.registry)
}

func (ri *RegistryItem) Gauge(name string) metrics.Gauge {
	return metrics.GetOrRegisterGauge(name, ri.registry)
}

func (ri *RegistryItem) Histogram(name string) metrics.Histogram {
	return metrics.GetOrRegisterHistogram(name, ri.registry, metrics.NewUniformSample(sampleSize))
}

// ObserveSince 以毫秒记录耗时
func (ri *RegistryItem) ObserveSince(name string, start time.Time) {
	ri.Histogram(name).Update(time.Since(start).Milliseconds())
}

func (ri *RegistryItem) JSONString() string {
	s, _ := jsoniter.MarshalToString(ri.registry.GetAll())
	return s
}
