package state

import (
	"sync"

	"dpos_demo/types"
)

// StateReader 世界状态的只读视图，由store.KVStore实现
type StateReader interface {
	Get(key string) ([]byte, bool, error)
}

// StateCache 执行过程中使用的分层缓存
// nil值表示删除，TryGetValue对删除的key返回false
type StateCache interface {
	TryGetValue(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// NullStateCache 什么都没有
type NullStateCache struct{}

func (NullStateCache) TryGetValue(string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NullStateCache) Set(string, []byte) error {
	return nil
}

// StoreStateCache 最底层，从StateReader读取
// Set不会落盘，只在本cache内可见
type StoreStateCache struct {
	mtx    sync.RWMutex
	reader StateReader
	writes map[string][]byte
}

func NewStoreStateCache(reader StateReader) *StoreStateCache {
	return &StoreStateCache{
		reader: reader,
		writes: make(map[string][]byte),
	}
}

func (sc *StoreStateCache) TryGetValue(key string) ([]byte, bool, error) {
	sc.mtx.RLock()
	v, ok := sc.writes[key]
	sc.mtx.RUnlock()
	if ok {
		return v, v != nil, nil
	}
	if sc.reader == nil {
		return nil, false, nil
	}
	return sc.reader.Get(key)
}

func (sc *StoreStateCache) Set(key string, value []byte) error {
	sc.mtx.Lock()
	defer sc.mtx.Unlock()
	sc.writes[key] = value
	return nil
}

// TieredStateCache 读取顺序: current -> original -> parent
// 从parent读到的值记录在original中，同一层内保证重复读的结果一致
// Update合并子层的写，Set直接写到parent
type TieredStateCache struct {
	mtx      sync.RWMutex
	parent   StateCache
	original map[string][]byte
	current  map[string][]byte
}

func NewTieredStateCache(parent StateCache) *TieredStateCache {
	if parent == nil {
		parent = NullStateCache{}
	}
	return &TieredStateCache{
		parent:   parent,
		original: make(map[string][]byte),
		current:  make(map[string][]byte),
	}
}

func (tc *TieredStateCache) TryGetValue(key string) ([]byte, bool, error) {
	tc.mtx.RLock()
	if v, ok := tc.current[key]; ok {
		tc.mtx.RUnlock()
		return v, v != nil, nil
	}
	if v, ok := tc.original[key]; ok {
		tc.mtx.RUnlock()
		return v, v != nil, nil
	}
	tc.mtx.RUnlock()

	v, ok, err := tc.parent.TryGetValue(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	tc.mtx.Lock()
	tc.original[key] = v
	tc.mtx.Unlock()
	return v, true, nil
}

// Update value为nil表示删除
func (tc *TieredStateCache) Update(changes map[string][]byte) {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()
	for k, v := range changes {
		tc.current[k] = v
	}
}

// UpdateReturnSets 将已经执行过的交易的结果叠加到本层
func (tc *TieredStateCache) UpdateReturnSets(sets types.ReturnSets) {
	changes, deletes := sets.Merge()
	tc.mtx.Lock()
	defer tc.mtx.Unlock()
	for k, v := range changes {
		tc.current[k] = v
	}
	for k := range deletes {
		tc.current[k] = nil
	}
}

func (tc *TieredStateCache) Set(key string, value []byte) error {
	return tc.parent.Set(key, value)
}
