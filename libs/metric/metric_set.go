package metric

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
)

func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics: make(map[string]MetricItem),
	}
}

// MetricSet label -> MetricItem，各模块启动时注册自己的metric
type MetricSet struct {
	mtx     sync.RWMutex
	metrics map[string]MetricItem
}

// SetMetrics - 根据label设置对应的Metrics，如果有存在的label，则返回error
func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, existed := ms.metrics[label]; existed {
		return ErrMetricLabelExist
	}
	ms.metrics[label] = item
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	_, existed := ms.metrics[label]
	ms.mtx.RUnlock()
	return existed
}

func (ms *MetricSet) GetMetrics(label string) MetricItem {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	return ms.metrics[label]
}

// GetRegistry 取出label对应的RegistryItem，不存在时创建
func (ms *MetricSet) GetRegistry(label string) *RegistryItem {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if item, ok := ms.metrics[label].(*RegistryItem); ok {
		return item
	}
	item := NewRegistryItem()
	ms.metrics[label] = item
	return item
}

// GetAllLabels 按字典序返回
func (ms *MetricSet) GetAllLabels() []string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	keys := make([]string, 0, len(ms.metrics))
	for k := range ms.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot label -> JSONString
func (ms *MetricSet) Snapshot() map[string]string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	snap := make(map[string]string, len(ms.metrics))
	for k, v := range ms.metrics {
		snap[k] = v.JSONString()
	}
	return snap
}
