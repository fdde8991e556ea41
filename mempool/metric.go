package mempool

import (
	"dpos_demo/libs/metric"
)

const (
	metricTxsNum     = "txs_num"         // mempool中所有的交易总数
	metricTxsBytes   = "total_txs_bytes" // 目前mempool所有的交易的大小
	metricReapedTxs  = "reaped_txs"      // 累计打包的交易数
	metricRemovedTxs = "removed_txs"     // 累计因提交而删除的交易数
)

func newMemMetric() *memMetric {
	return &memMetric{RegistryItem: metric.NewRegistryItem()}
}

type memMetric struct {
	*metric.RegistryItem
}

func (mm *memMetric) MarkTxsNum(txsnum int) {
	mm.Gauge(metricTxsNum).Update(int64(txsnum))
}

func (mm *memMetric) MarkTotalTxsBytes(totalTxsBytes int64) {
	mm.Gauge(metricTxsBytes).Update(totalTxsBytes)
}

func (mm *memMetric) MarkReaped(n int) {
	mm.Counter(metricReapedTxs).Inc(int64(n))
}

func (mm *memMetric) MarkRemoved(n int) {
	mm.Counter(metricRemovedTxs).Inc(int64(n))
}
