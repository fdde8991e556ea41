package state

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/service"

	"dpos_demo/config"
	"dpos_demo/types"
)

var (
	ErrRegistrationNotFound = errors.New("smart contract registration not found")
	ErrRunnerNotFound       = errors.New("runner not found for category")
)

// ZeroContractAddress 零号合约，所有合约的注册信息保存在它的状态下
var ZeroContractAddress = types.AddressFromString("dpos_demo.contract.zero")

// Registration 合约的注册信息
type Registration struct {
	Category int32      `json:"category"`
	CodeHash types.Hash `json:"code_hash"`
	Code     []byte     `json:"code"`
	Version  int        `json:"version"`
}

// MethodDescriptor 合约方法的元信息，供插件判断是否需要注入交易
type MethodDescriptor struct {
	Name   string `json:"name"`
	IsView bool   `json:"is_view"`
	Fee    int64  `json:"fee"`
}

// Executive 合约运行时实例，同一时间只能被一个交易使用
type Executive interface {
	Apply(ctx context.Context, txCtx *TransactionContext) error
	Descriptors() []*MethodDescriptor
	CodeHash() types.Hash
	// Reset 归还到池中之前清理单次调用的状态
	Reset()
}

// Runner 根据注册信息创建executive
type Runner interface {
	Category() int32
	Run(reg *Registration) (Executive, error)
}

type RegistrationProvider interface {
	GetRegistration(cache StateCache, address types.Address) (*Registration, error)
}

// ExecutiveProvider 执行服务只依赖取出/归还两个操作
type ExecutiveProvider interface {
	GetExecutive(ctx context.Context, cache StateCache, address types.Address) (Executive, error)
	PutExecutive(address types.Address, executive Executive) error
}

//-----------------------------------------------------------------------------

func registrationPath(address types.Address) string {
	return "registration/" + address.String()
}

// StateRegistrationProvider 从零号合约的状态中读取注册信息
type StateRegistrationProvider struct{}

func (StateRegistrationProvider) GetRegistration(cache StateCache, address types.Address) (*Registration, error) {
	bz, ok, err := cache.TryGetValue(ScopedKey(ZeroContractAddress, registrationPath(address)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrRegistrationNotFound, "address %v", address)
	}
	reg := &Registration{}
	if err := jsoniter.Unmarshal(bz, reg); err != nil {
		return nil, errors.Wrapf(err, "decode registration of %v", address)
	}
	return reg, nil
}

// RegistrationKV 部署合约时需要写入世界状态的key和value
func RegistrationKV(address types.Address, reg *Registration) (string, []byte, error) {
	bz, err := jsoniter.Marshal(reg)
	if err != nil {
		return "", nil, err
	}
	return ScopedKey(ZeroContractAddress, registrationPath(address)), bz, nil
}

//-----------------------------------------------------------------------------

type pooledExecutive struct {
	executive Executive
	lastUsed  time.Time
}

type ExecutiveServiceOption func(es *ExecutiveService)

// SetZeroContract 零号合约的注册信息不在状态中
func SetZeroContract(reg *Registration) ExecutiveServiceOption {
	return func(es *ExecutiveService) {
		es.zeroRegistration = reg
	}
}

func SetExecutiveClock(now func() time.Time) ExecutiveServiceOption {
	return func(es *ExecutiveService) {
		es.now = now
	}
}

// ExecutiveService 按code hash缓存executive
// 后台routine定期清理长时间闲置的executive
type ExecutiveService struct {
	service.BaseService

	config *config.ExecutorConfig

	provider         RegistrationProvider
	zeroRegistration *Registration
	runners          map[int32]Runner

	// address -> *Registration
	registrations *lru.Cache

	mtx   sync.Mutex
	pools map[string][]*pooledExecutive

	now func() time.Time
}

func NewExecutiveService(
	cfg *config.ExecutorConfig,
	provider RegistrationProvider,
	runners []Runner,
	options ...ExecutiveServiceOption,
) (*ExecutiveService, error) {
	cache, err := lru.New(cfg.RegistrationCacheSize)
	if err != nil {
		return nil, err
	}

	es := &ExecutiveService{
		config:        cfg,
		provider:      provider,
		runners:       make(map[int32]Runner, len(runners)),
		registrations: cache,
		pools:         make(map[string][]*pooledExecutive),
		now:           time.Now,
	}
	for _, r := range runners {
		es.runners[r.Category()] = r
	}
	for _, option := range options {
		option(es)
	}
	es.BaseService = *service.NewBaseService(nil, "ExecutiveService", es)
	return es, nil
}

func (es *ExecutiveService) OnStart() error {
	go es.cleanupRoutine()
	return nil
}

func (es *ExecutiveService) OnStop() {}

func (es *ExecutiveService) getRegistration(cache StateCache, address types.Address) (*Registration, error) {
	if address == ZeroContractAddress && es.zeroRegistration != nil {
		return es.zeroRegistration, nil
	}
	if v, ok := es.registrations.Get(address); ok {
		return v.(*Registration), nil
	}
	if es.provider == nil {
		return nil, errors.Wrapf(ErrRegistrationNotFound, "address %v", address)
	}
	reg, err := es.provider.GetRegistration(cache, address)
	if err != nil {
		return nil, err
	}
	es.registrations.Add(address, reg)
	return reg, nil
}

// GetExecutive 优先复用池中闲置的executive
func (es *ExecutiveService) GetExecutive(ctx context.Context, cache StateCache, address types.Address) (Executive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reg, err := es.getRegistration(cache, address)
	if err != nil {
		return nil, err
	}

	codeHash := reg.CodeHash.String()
	es.mtx.Lock()
	pool := es.pools[codeHash]
	if n := len(pool); n > 0 {
		pe := pool[n-1]
		es.pools[codeHash] = pool[:n-1]
		es.mtx.Unlock()
		return pe.executive, nil
	}
	es.mtx.Unlock()

	runner, ok := es.runners[reg.Category]
	if !ok {
		return nil, errors.Wrapf(ErrRunnerNotFound, "category %d", reg.Category)
	}
	executive, err := runner.Run(reg)
	if err != nil {
		return nil, errors.Wrapf(err, "run contract %v", address)
	}
	es.Logger.Debug("Create executive", "address", address, "codeHash", codeHash)
	return executive, nil
}

// PutExecutive 重置后放回池中
func (es *ExecutiveService) PutExecutive(address types.Address, executive Executive) error {
	if executive == nil {
		return nil
	}
	executive.Reset()

	codeHash := executive.CodeHash().String()
	es.mtx.Lock()
	defer es.mtx.Unlock()
	es.pools[codeHash] = append(es.pools[codeHash], &pooledExecutive{
		executive: executive,
		lastUsed:  es.now(),
	})
	return nil
}

// IdleCount 池中闲置的executive数量
func (es *ExecutiveService) IdleCount(codeHash types.Hash) int {
	es.mtx.Lock()
	defer es.mtx.Unlock()
	return len(es.pools[codeHash.String()])
}

// ClearRegistration 合约升级后需要清除缓存的注册信息
func (es *ExecutiveService) ClearRegistration(address types.Address) {
	es.registrations.Remove(address)
}

func (es *ExecutiveService) cleanupRoutine() {
	ticker := time.NewTicker(es.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			es.cleanupIdle()
		case <-es.Quit():
			return
		}
	}
}

// cleanupIdle 超过MaxIdleExecutives的池才清理，只清理闲置超过IdleTimeout的
func (es *ExecutiveService) cleanupIdle() {
	es.mtx.Lock()
	defer es.mtx.Unlock()

	now := es.now()
	for codeHash, pool := range es.pools {
		if len(pool) <= es.config.MaxIdleExecutives {
			continue
		}
		kept := pool[:0]
		for _, pe := range pool {
			if now.Sub(pe.lastUsed) > es.config.IdleTimeout {
				continue
			}
			kept = append(kept, pe)
		}
		if evicted := len(pool) - len(kept); evicted > 0 {
			es.Logger.Debug("Evict idle executives", "codeHash", codeHash, "evicted", evicted)
		}
		es.pools[codeHash] = kept
	}
}
