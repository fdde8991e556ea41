package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpos_demo/types"
)

func TestTieredStateCacheRead(t *testing.T) {
	reader := mapReader{"a": []byte("1"), "b": []byte("2")}
	base := NewStoreStateCache(reader)
	tc := NewTieredStateCache(base)

	v, ok, err := tc.TryGetValue("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// 从parent读到的值被记住，parent之后的变化不可见
	reader["a"] = []byte("changed")
	v, _, _ = tc.TryGetValue("a")
	assert.Equal(t, []byte("1"), v, "同一层内重复读的结果应该一致")

	_, ok, err = tc.TryGetValue("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// current优先
	tc.Update(map[string][]byte{"b": []byte("3")})
	v, _, _ = tc.TryGetValue("b")
	assert.Equal(t, []byte("3"), v)
}

func TestTieredStateCacheTombstone(t *testing.T) {
	tc := NewTieredStateCache(NewStoreStateCache(mapReader{"a": []byte("1")}))
	tc.Update(map[string][]byte{"a": nil})

	_, ok, err := tc.TryGetValue("a")
	require.NoError(t, err)
	assert.False(t, ok, "nil值表示删除")

	// 子层也看不到被删除的key
	child := NewTieredStateCache(tc)
	_, ok, _ = child.TryGetValue("a")
	assert.False(t, ok)
}

func TestTieredStateCacheUpdateReturnSets(t *testing.T) {
	tc := NewTieredStateCache(NewStoreStateCache(mapReader{"a": []byte("1"), "b": []byte("2")}))

	first := types.NewExecutionReturnSet(types.HashFromString("tx1"), types.TxResultMined)
	first.StateChanges["a"] = []byte("10")
	first.StateDeletes["b"] = true
	second := types.NewExecutionReturnSet(types.HashFromString("tx2"), types.TxResultMined)
	second.StateChanges["b"] = []byte("20")
	tc.UpdateReturnSets(types.ReturnSets{first, second})

	v, _, _ := tc.TryGetValue("a")
	assert.Equal(t, []byte("10"), v)
	v, ok, _ := tc.TryGetValue("b")
	assert.True(t, ok, "后面的return set覆盖前面的删除")
	assert.Equal(t, []byte("20"), v)
}

func TestTieredStateCacheSetWritesThrough(t *testing.T) {
	base := NewStoreStateCache(nil)
	middle := NewTieredStateCache(base)
	top := NewTieredStateCache(middle)

	require.NoError(t, top.Set("k", []byte("v")))
	v, ok, err := base.TryGetValue("k")
	require.NoError(t, err)
	assert.True(t, ok, "Set应该一直写到最底层")
	assert.Equal(t, []byte("v"), v)

	// NullStateCache什么都不保存
	null := NewTieredStateCache(nil)
	require.NoError(t, null.Set("k", []byte("v")))
	_, ok, _ = null.TryGetValue("k")
	assert.False(t, ok)
}

func TestTieredStateCacheChildWritesInvisibleToParent(t *testing.T) {
	parent := NewTieredStateCache(NewStoreStateCache(mapReader{"a": []byte("1")}))
	child := NewTieredStateCache(parent)

	changes := map[string][]byte{"a": []byte("2"), "new": []byte("x")}
	child.Update(changes)

	v, ok, err := child.TryGetValue("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v, "子层能看到自己的写")

	v, _, err = parent.TryGetValue("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v, "子层的写在合并之前对父层不可见")
	_, ok, err = parent.TryGetValue("new")
	require.NoError(t, err)
	assert.False(t, ok)

	// 合并到父层之后可见
	parent.Update(changes)
	v, _, err = parent.TryGetValue("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v, "合并之后父层可见")
	v, ok, err = parent.TryGetValue("new")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), v)
}
