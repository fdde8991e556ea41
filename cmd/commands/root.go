package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/cli"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "dpos_demo/config"
)

var (
	config = cfg.DefaultConfig()
	logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log_level", config.LogLevel, "Log level")
}

// ParseConfig 根目录下有config.toml时读取，否则使用默认配置
func ParseConfig() (*cfg.Config, error) {
	home := viper.GetString(cli.HomeFlag)
	conf := cfg.DefaultConfig()
	if tmos.FileExists(conf.SetRoot(home).ConfigFile()) {
		var err error
		if conf, err = cfg.LoadConfig(home); err != nil {
			return nil, err
		}
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		conf.LogLevel = lvl
	}
	conf.SetRoot(home)
	return conf, conf.ValidateBasic()
}

// RootCmd is the root command for the dpos node.
var RootCmd = &cobra.Command{
	Use:   "dpos",
	Short: "DPoS consensus demo with a smallbank executor",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}

		config, err = ParseConfig()
		if err != nil {
			return err
		}

		logger, err = tmflags.ParseLogLevel(config.LogLevel, logger, "info")
		if err != nil {
			return err
		}
		logger = logger.With("module", "main")
		return nil
	},
}

// deprecateSnakeCase is a util function for 0.34.1. Should be removed in 0.35
func deprecateSnakeCase(cmd *cobra.Command, args []string) {
	if strings.Contains(cmd.CalledAs(), "_") {
		cmd.Println("Deprecated: snake_case commands will be replaced by hyphen-case commands in the next major release")
	}
}

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(Version)
	},
}

const Version = "0.1.0"

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. Empty strings are filtered out.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
