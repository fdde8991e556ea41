package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrTxInCache is returned to the client if we saw tx earlier
	ErrTxInCache = errors.New("tx already exists in cache")
	ErrTxInMap   = errors.New("tx already exists in map")
)

// ErrTxTooLarge 单个交易过大
type ErrTxTooLarge struct {
	Max    int
	Actual int
}

func (e ErrTxTooLarge) Error() string {
	return fmt.Sprintf("tx too large. Max size is %d, but got %d", e.Max, e.Actual)
}

// ErrMempoolIsFull 交易条数或者总大小超过上限
type ErrMempoolIsFull struct {
	NumTxs      int
	MaxTxs      int
	TxsBytes    int64
	MaxTxsBytes int64
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf(
		"mempool is full: number of txs %d (max: %d), total txs bytes %d (max: %d)",
		e.NumTxs, e.MaxTxs, e.TxsBytes, e.MaxTxsBytes)
}

// ErrPreCheck 未通过PreCheckFunc
type ErrPreCheck struct {
	Reason error
}

func (e ErrPreCheck) Error() string {
	return e.Reason.Error()
}
