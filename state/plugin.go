package state

import (
	"reflect"

	"dpos_demo/types"
)

// PreExecutionPlugin 在主调用之前注入交易，注入的交易失败则主调用不执行
type PreExecutionPlugin interface {
	GetPreTransactions(descriptors []*MethodDescriptor, txCtx *TransactionContext) (types.Txs, error)
}

// PostExecutionPlugin 在主调用之后注入交易
type PostExecutionPlugin interface {
	GetPostTransactions(descriptors []*MethodDescriptor, txCtx *TransactionContext) (types.Txs, error)
}

// 同一类型的插件只保留最先注册的一个，保持注册顺序
func uniquePrePlugins(plugins []PreExecutionPlugin) []PreExecutionPlugin {
	seen := make(map[reflect.Type]bool, len(plugins))
	unique := make([]PreExecutionPlugin, 0, len(plugins))
	for _, p := range plugins {
		if p == nil || seen[reflect.TypeOf(p)] {
			continue
		}
		seen[reflect.TypeOf(p)] = true
		unique = append(unique, p)
	}
	return unique
}

func uniquePostPlugins(plugins []PostExecutionPlugin) []PostExecutionPlugin {
	seen := make(map[reflect.Type]bool, len(plugins))
	unique := make([]PostExecutionPlugin, 0, len(plugins))
	for _, p := range plugins {
		if p == nil || seen[reflect.TypeOf(p)] {
			continue
		}
		seen[reflect.TypeOf(p)] = true
		unique = append(unique, p)
	}
	return unique
}
