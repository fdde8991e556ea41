package state

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpos_demo/config"
	"dpos_demo/types"
)

func TestExecutivePoolReuse(t *testing.T) {
	es, runner := newTestExecutiveService(t)
	cache := NewStoreStateCache(newTestStore(t))
	ctx := context.Background()

	first, err := es.GetExecutive(ctx, cache, testContractAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.Runs())

	// 池是空的，需要再创建一个
	second, err := es.GetExecutive(ctx, cache, testContractAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.Runs())

	require.NoError(t, es.PutExecutive(testContractAddr, first))
	require.NoError(t, es.PutExecutive(testContractAddr, second))
	assert.Equal(t, 2, es.IdleCount(testCodeHash))

	third, err := es.GetExecutive(ctx, cache, testContractAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.Runs(), "应该复用池中的executive")
	assert.Same(t, second, third, "后放回的先取出")
	assert.Equal(t, 1, es.IdleCount(testCodeHash))
}

func TestExecutiveRegistrationNotFound(t *testing.T) {
	es, _ := newTestExecutiveService(t)
	cache := NewStoreStateCache(newTestStore(t))

	_, err := es.GetExecutive(context.Background(), cache, types.AddressFromString("nobody"))
	assert.Equal(t, ErrRegistrationNotFound, errors.Cause(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = es.GetExecutive(ctx, cache, testContractAddr)
	assert.Equal(t, context.Canceled, err)
}

func TestExecutiveRunnerNotFound(t *testing.T) {
	kv := newTestStore(t)
	addr := types.AddressFromString("other.category")
	key, bz, err := RegistrationKV(addr, &Registration{Category: 7, CodeHash: types.HashFromString("other")})
	require.NoError(t, err)
	require.NoError(t, kv.Set(key, bz))

	es, _ := newTestExecutiveService(t)
	_, err = es.GetExecutive(context.Background(), NewStoreStateCache(kv), addr)
	assert.Equal(t, ErrRunnerNotFound, errors.Cause(err))
}

func TestExecutiveRegistrationCache(t *testing.T) {
	kv := newTestStore(t)
	es, _ := newTestExecutiveService(t)
	ctx := context.Background()

	_, err := es.GetExecutive(ctx, NewStoreStateCache(kv), testContractAddr)
	require.NoError(t, err)

	// 注册信息被缓存，即使状态中删除了也能取到
	key, _, err := RegistrationKV(testContractAddr, &Registration{})
	require.NoError(t, err)
	empty := NewStoreStateCache(kv)
	require.NoError(t, empty.Set(key, nil))
	_, err = es.GetExecutive(ctx, empty, testContractAddr)
	assert.NoError(t, err)

	es.ClearRegistration(testContractAddr)
	_, err = es.GetExecutive(ctx, empty, testContractAddr)
	assert.Equal(t, ErrRegistrationNotFound, errors.Cause(err), "清除缓存后重新读取注册信息")
}

func TestExecutiveCleanupIdle(t *testing.T) {
	defer leaktest.Check(t)()

	var nowNano int64 = time.Now().UnixNano()
	clock := func() time.Time {
		return time.Unix(0, atomic.LoadInt64(&nowNano))
	}

	cfg := config.TestConfig().Executor
	es, err := NewExecutiveService(cfg, StateRegistrationProvider{}, []Runner{&testRunner{}}, SetExecutiveClock(clock))
	require.NoError(t, err)
	es.SetLogger(testLogger())
	require.NoError(t, es.Start())
	defer es.Stop() // nolint: errcheck

	// 只有一个闲置时不清理
	require.NoError(t, es.PutExecutive(testContractAddr, &testContract{codeHash: testCodeHash}))
	atomic.AddInt64(&nowNano, int64(time.Minute))
	time.Sleep(5 * cfg.CleanupInterval)
	assert.Equal(t, 1, es.IdleCount(testCodeHash), "没有超过MaxIdleExecutives")

	// 新放回的未超时，旧的超时被清理
	require.NoError(t, es.PutExecutive(testContractAddr, &testContract{codeHash: testCodeHash}))
	assert.Eventually(t, func() bool {
		return es.IdleCount(testCodeHash) == 1
	}, time.Second, cfg.CleanupInterval)

	require.NoError(t, es.PutExecutive(testContractAddr, &testContract{codeHash: testCodeHash}))
	atomic.AddInt64(&nowNano, int64(time.Minute))
	assert.Eventually(t, func() bool {
		return es.IdleCount(testCodeHash) == 0
	}, time.Second, cfg.CleanupInterval, "全部超时后都被清理")
}
