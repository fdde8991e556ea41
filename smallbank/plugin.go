package smallbank

import (
	"dpos_demo/state"
	"dpos_demo/types"
)

// FeePlugin 收费方法执行前从发送者的checking扣除手续费
// 发送者地址即账户名
type FeePlugin struct{}

var _ state.PreExecutionPlugin = FeePlugin{}

func (FeePlugin) GetPreTransactions(descriptors []*state.MethodDescriptor, txCtx *state.TransactionContext) (types.Txs, error) {
	tx := txCtx.Transaction
	for _, d := range descriptors {
		if d.Name != tx.MethodName {
			continue
		}
		if d.Fee <= 0 {
			return nil, nil
		}
		charge := NewTx(tx.From, MethodChargeFee, Params{Name: tx.From.String(), Amount: d.Fee})
		charge.RefBlockNumber = txCtx.BlockHeight - 1
		return types.Txs{charge}, nil
	}
	return nil, nil
}

// ResourceExtractor 交易访问的账户，用于并行分组
type ResourceExtractor struct{}

var _ state.ResourceExtractor = ResourceExtractor{}

func (ResourceExtractor) GetResources(tx *types.Transaction) []string {
	if tx.To != Address {
		return nil
	}
	p, err := DecodeParams(tx.Params)
	if err != nil {
		return nil
	}
	resources := []string{tableAccount + p.Name}
	if p.Dest != "" {
		resources = append(resources, tableAccount+p.Dest)
	}
	// 手续费从发送者扣除
	if !tx.From.IsEmpty() && tx.From.String() != p.Name {
		resources = append(resources, tableAccount+tx.From.String())
	}
	return resources
}
