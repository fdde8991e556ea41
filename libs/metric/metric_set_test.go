package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.Equal(t, ErrMetricLabelExist, metric.SetMetrics("TEST", mockItem), "label(TEST)不应该设置成功")
	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1)应该设置成功")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
	assert.Equal(t, []string{"TEST", "TEST1"}, metric.GetAllLabels())
}

func TestMetricSet_GetRegistry(t *testing.T) {
	metric := NewMetricSet()

	reg := metric.GetRegistry("executor")
	assert.Same(t, reg, metric.GetRegistry("executor"), "同一个label返回同一个registry")

	reg.Counter("txs").Inc(3)
	reg.Gauge("height").Update(10)
	reg.ObserveSince("apply_ms", time.Now().Add(-5*time.Millisecond))

	assert.EqualValues(t, 3, reg.Counter("txs").Count())
	assert.EqualValues(t, 1, reg.Histogram("apply_ms").Count())

	snap := metric.Snapshot()
	assert.Contains(t, snap["executor"], "txs")
	assert.Contains(t, snap["executor"], "height")
}
