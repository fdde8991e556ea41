package state

import (
	"time"

	"dpos_demo/types"
)

// TransactionContext 合约执行时能看到的全部信息
// 合约通过GetState/SetState读写自己地址下的状态，写入记录在Trace中，由执行服务负责合并
type TransactionContext struct {
	PreviousBlockHash types.Hash
	CurrentBlockTime  time.Time
	BlockHeight       int64
	Transaction       *types.Transaction
	Trace             *types.TransactionTrace
	CallDepth         int
	Origin            types.Address
	StateCache        StateCache
}

// ScopedKey 合约状态的key，以合约地址为前缀
func ScopedKey(address types.Address, path string) string {
	return address.String() + "/" + path
}

func (ctx *TransactionContext) Self() types.Address {
	return ctx.Transaction.To
}

func (ctx *TransactionContext) Sender() types.Address {
	return ctx.Transaction.From
}

// GetState 先看本次调用自己的写，再读cache
func (ctx *TransactionContext) GetState(path string) ([]byte, bool, error) {
	key := ScopedKey(ctx.Self(), path)
	set := ctx.Trace.StateSet
	set.Reads[key] = true
	if set.Deletes[key] {
		return nil, false, nil
	}
	if v, ok := set.Writes[key]; ok {
		return v, true, nil
	}
	return ctx.StateCache.TryGetValue(key)
}

func (ctx *TransactionContext) SetState(path string, value []byte) {
	key := ScopedKey(ctx.Self(), path)
	if value == nil {
		ctx.DeleteState(path)
		return
	}
	delete(ctx.Trace.StateSet.Deletes, key)
	ctx.Trace.StateSet.Writes[key] = value
}

func (ctx *TransactionContext) DeleteState(path string) {
	key := ScopedKey(ctx.Self(), path)
	delete(ctx.Trace.StateSet.Writes, key)
	ctx.Trace.StateSet.Deletes[key] = true
}

// SendInline 当前调用成功后再执行
func (ctx *TransactionContext) SendInline(to types.Address, method string, params []byte) {
	tx := types.NewTransaction(ctx.Self(), to, method, params)
	tx.RefBlockNumber = ctx.BlockHeight - 1
	ctx.Trace.InlineTransactions = append(ctx.Trace.InlineTransactions, tx)
}

func (ctx *TransactionContext) FireLogEvent(name string, data []byte) {
	ctx.Trace.Logs = append(ctx.Trace.Logs, &types.LogEvent{
		Address: ctx.Self(),
		Name:    name,
		Data:    data,
	})
}

func (ctx *TransactionContext) SetReturnValue(v []byte) {
	ctx.Trace.ReturnValue = v
}
