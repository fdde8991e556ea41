package config

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultDirPerm = 0700

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"
	defaultMinerKeyName    = "miner_key.json"
)

var (
	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultMinerKeyPath    = filepath.Join(defaultConfigDir, defaultMinerKeyName)
)

// Config 节点的全部配置
type Config struct {
	BaseConfig `mapstructure:",squash"`

	DPoS     *DPoSConfig     `mapstructure:"dpos"`
	Executor *ExecutorConfig `mapstructure:"executor"`
	Mempool  *MempoolConfig  `mapstructure:"mempool"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		DPoS:       DefaultDPoSConfig(),
		Executor:   DefaultExecutorConfig(),
		Mempool:    DefaultMempoolConfig(),
	}
}

// TestConfig 测试用，时间参数都调小
func TestConfig() *Config {
	return &Config{
		BaseConfig: TestBaseConfig(),
		DPoS:       TestDPoSConfig(),
		Executor:   TestExecutorConfig(),
		Mempool:    DefaultMempoolConfig(),
	}
}

// SetRoot 设置所有文件路径的根目录
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.DPoS.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [dpos] section")
	}
	if err := cfg.Executor.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [executor] section")
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [mempool] section")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

type BaseConfig struct {
	// 根目录，通过--home指定
	RootDir string `mapstructure:"home"`

	Moniker string `mapstructure:"moniker"`

	LogLevel string `mapstructure:"log_level"`

	// goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`
	DBPath    string `mapstructure:"db_dir"`

	Genesis      string `mapstructure:"genesis_file"`
	MinerKeyFile string `mapstructure:"miner_key_file"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:      "dpos-node",
		LogLevel:     "main:info,state:info,*:error",
		DBBackend:    "goleveldb",
		DBPath:       defaultDataDir,
		Genesis:      defaultGenesisJSONPath,
		MinerKeyFile: defaultMinerKeyPath,
	}
}

func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test-node"
	cfg.DBBackend = "memdb"
	return cfg
}

func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

func (cfg BaseConfig) MinerKeyFilePath() string {
	return rootify(cfg.MinerKeyFile, cfg.RootDir)
}

func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return errors.Errorf("unsupported db_backend %q", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// DPoSConfig

type DPoSConfig struct {
	// 每个term持续的天数
	DaysEachTerm int64 `mapstructure:"days_each_term"`

	// 每个term选出的出块者数量，0表示与创世出块者数量一致
	MinersCount int `mapstructure:"miners_count"`

	// 出块者在自己的时间槽内最多等待的时间
	MaxWait time.Duration `mapstructure:"max_wait"`
}

func DefaultDPoSConfig() *DPoSConfig {
	return &DPoSConfig{
		DaysEachTerm: 7,
		MinersCount:  0,
		MaxWait:      10 * time.Second,
	}
}

func TestDPoSConfig() *DPoSConfig {
	cfg := DefaultDPoSConfig()
	cfg.MaxWait = 500 * time.Millisecond
	return cfg
}

func (cfg *DPoSConfig) ValidateBasic() error {
	if cfg.DaysEachTerm <= 0 {
		return errors.New("days_each_term must be positive")
	}
	if cfg.MinersCount < 0 {
		return errors.New("miners_count can't be negative")
	}
	if cfg.MaxWait <= 0 {
		return errors.New("max_wait must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ExecutorConfig

type ExecutorConfig struct {
	// 闲置executive的清理周期
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	// 每个code hash最多保留的闲置executive，超过才会清理
	MaxIdleExecutives int `mapstructure:"max_idle_executives"`

	RegistrationCacheSize int `mapstructure:"registration_cache_size"`

	// 并行执行交易分组的worker数
	ParallelWorkers int `mapstructure:"parallel_workers"`

	// 打包区块时执行交易的超时
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
}

func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		CleanupInterval:       time.Minute,
		IdleTimeout:           10 * time.Minute,
		MaxIdleExecutives:     16,
		RegistrationCacheSize: 256,
		ParallelWorkers:       4,
		ExecutionTimeout:      2 * time.Second,
	}
}

func TestExecutorConfig() *ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	cfg.IdleTimeout = 20 * time.Millisecond
	cfg.MaxIdleExecutives = 1
	return cfg
}

func (cfg *ExecutorConfig) ValidateBasic() error {
	if cfg.CleanupInterval <= 0 {
		return errors.New("cleanup_interval must be positive")
	}
	if cfg.IdleTimeout < 0 {
		return errors.New("idle_timeout can't be negative")
	}
	if cfg.MaxIdleExecutives < 0 {
		return errors.New("max_idle_executives can't be negative")
	}
	if cfg.RegistrationCacheSize <= 0 {
		return errors.New("registration_cache_size must be positive")
	}
	if cfg.ParallelWorkers <= 0 {
		return errors.New("parallel_workers must be positive")
	}
	if cfg.ExecutionTimeout <= 0 {
		return errors.New("execution_timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MempoolConfig

type MempoolConfig struct {
	// 交易条数上限
	Size int `mapstructure:"size"`
	// 交易总大小上限
	MaxTxsBytes int64 `mapstructure:"max_txs_bytes"`
	// 单笔交易大小上限
	MaxTxBytes int `mapstructure:"max_tx_bytes"`
	// 每个区块最多打包的交易数，负数表示不限制
	MaxTxsPerBlock int `mapstructure:"max_txs_per_block"`
}

func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Size:           5000,
		MaxTxsBytes:    1024 * 1024 * 1024, // 1GB
		MaxTxBytes:     1024 * 1024,        // 1MB
		MaxTxsPerBlock: 1000,
	}
}

func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	if cfg.MaxTxsBytes < 0 {
		return errors.New("max_txs_bytes can't be negative")
	}
	if cfg.MaxTxBytes < 0 {
		return errors.New("max_tx_bytes can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
