package state

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/config"
	"dpos_demo/store"
	"dpos_demo/types"
)

type cleanup func()

var (
	testContractAddr = types.AddressFromString("test.contract")
	testCodeHash     = types.HashFromString("test.contract.code")
	testSender       = types.Address("alice")
	errBoom          = errors.New("boom")
)

func testLogger() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

// testContract 参数格式 key=value
type testContract struct {
	codeHash types.Hash
	applied  int
}

func (c *testContract) Apply(ctx context.Context, txCtx *TransactionContext) error {
	c.applied++
	params := string(txCtx.Transaction.Params)
	switch txCtx.Transaction.MethodName {
	case "set", "charge":
		kv := strings.SplitN(params, "=", 2)
		txCtx.SetState(kv[0], []byte(kv[1]))
	case "get":
		v, _, err := txCtx.GetState(params)
		if err != nil {
			return err
		}
		txCtx.SetReturnValue(v)
	case "delete":
		txCtx.DeleteState(params)
	case "fail":
		return errBoom
	case "panic":
		panic("oops")
	case "inline":
		txCtx.SetState("a", []byte("1"))
		txCtx.SendInline(txCtx.Self(), "set", []byte("b=2"))
	case "inline_fail":
		txCtx.SetState("a", []byte("1"))
		txCtx.SendInline(txCtx.Self(), "fail", nil)
	case "log":
		txCtx.FireLogEvent("Logged", txCtx.Transaction.Params)
	case "slow":
		<-ctx.Done()
		return ctx.Err()
	default:
		return errors.New("unknown method")
	}
	return nil
}

func (c *testContract) Descriptors() []*MethodDescriptor {
	return []*MethodDescriptor{
		{Name: "set", Fee: 1},
		{Name: "charge"},
		{Name: "get", IsView: true},
		{Name: "log"},
	}
}

func (c *testContract) CodeHash() types.Hash {
	return c.codeHash
}

func (c *testContract) Reset() {}

type testRunner struct {
	runs int32
}

func (r *testRunner) Category() int32 {
	return 0
}

func (r *testRunner) Run(reg *Registration) (Executive, error) {
	atomic.AddInt32(&r.runs, 1)
	return &testContract{codeHash: reg.CodeHash}, nil
}

func (r *testRunner) Runs() int {
	return int(atomic.LoadInt32(&r.runs))
}

// newTestStore 部署了testContract的内存数据库
func newTestStore(t *testing.T) *store.KVStore {
	kv := store.NewMemKVStore(testLogger())
	key, bz, err := RegistrationKV(testContractAddr, &Registration{
		Category: 0,
		CodeHash: testCodeHash,
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(key, bz))
	return kv
}

func newTestExecutiveService(t *testing.T) (*ExecutiveService, *testRunner) {
	runner := &testRunner{}
	es, err := NewExecutiveService(config.TestConfig().Executor, StateRegistrationProvider{}, []Runner{runner})
	require.NoError(t, err)
	es.SetLogger(testLogger())
	return es, runner
}

func newTestExecutingService(t *testing.T, options ...ExecutingServiceOption) (*TransactionExecutingService, *store.KVStore) {
	kv := newTestStore(t)
	es, _ := newTestExecutiveService(t)
	options = append([]ExecutingServiceOption{SetResultSink(kv)}, options...)
	s := NewTransactionExecutingService(kv, es, options...)
	s.SetLogger(testLogger())
	return s, kv
}

func testHeader(height int64) *types.Header {
	return &types.Header{
		ChainID: "state_test",
		Height:  height,
	}
}

func call(method, params string) *types.Transaction {
	return types.NewTransaction(testSender, testContractAddr, method, []byte(params))
}

func scoped(path string) string {
	return ScopedKey(testContractAddr, path)
}

type mapReader map[string][]byte

func (m mapReader) Get(key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
