package config

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// EnsureRoot 创建根目录以及config、data目录
func EnsureRoot(rootDir string) error {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		return err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		return err
	}
	return tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm)
}

// WriteConfigFile 通过viper写出toml格式的配置文件，home不写入文件
func WriteConfigFile(configFilePath string, cfg *Config) error {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("moniker", cfg.Moniker)
	v.Set("log_level", cfg.LogLevel)
	v.Set("db_backend", cfg.DBBackend)
	v.Set("db_dir", cfg.DBPath)
	v.Set("genesis_file", cfg.Genesis)
	v.Set("miner_key_file", cfg.MinerKeyFile)

	v.Set("dpos.days_each_term", cfg.DPoS.DaysEachTerm)
	v.Set("dpos.miners_count", cfg.DPoS.MinersCount)
	v.Set("dpos.max_wait", cfg.DPoS.MaxWait.String())

	v.Set("executor.cleanup_interval", cfg.Executor.CleanupInterval.String())
	v.Set("executor.idle_timeout", cfg.Executor.IdleTimeout.String())
	v.Set("executor.max_idle_executives", cfg.Executor.MaxIdleExecutives)
	v.Set("executor.registration_cache_size", cfg.Executor.RegistrationCacheSize)
	v.Set("executor.parallel_workers", cfg.Executor.ParallelWorkers)
	v.Set("executor.execution_timeout", cfg.Executor.ExecutionTimeout.String())

	v.Set("mempool.size", cfg.Mempool.Size)
	v.Set("mempool.max_txs_bytes", cfg.Mempool.MaxTxsBytes)
	v.Set("mempool.max_tx_bytes", cfg.Mempool.MaxTxBytes)
	v.Set("mempool.max_txs_per_block", cfg.Mempool.MaxTxsPerBlock)

	if err := v.WriteConfigAs(configFilePath); err != nil {
		return errors.Wrapf(err, "write config %v", configFilePath)
	}
	return nil
}

// LoadConfig 读取root下的config.toml，缺省字段使用默认值
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigFile(cfg.SetRoot(root).ConfigFile())
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.SetRoot(root)
	return cfg, cfg.ValidateBasic()
}
