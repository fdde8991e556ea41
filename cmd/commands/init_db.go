package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	nm "dpos_demo/node"
	"dpos_demo/smallbank"
	"dpos_demo/store"
)

var (
	accountSum     int
	initialBalance int64
)

func init() {
	InitDBCmd.Flags().IntVar(&accountSum, "account-sum", 100, "small bank account sum")
	InitDBCmd.Flags().Int64Var(&initialBalance, "balance", 200, "saving和checking的初始余额")
}

var InitDBCmd = &cobra.Command{
	Use:     "init-db",
	Aliases: []string{"init_db", "initdb"},
	Short:   "initiate a test small bank database",
	RunE:    initDB,
}

func initDB(cmd *cobra.Command, args []string) error {
	if accountSum < 0 {
		return errors.New("account sum must > 0")
	}
	db, err := store.NewDB(nm.StateDBName, config.DBBackend, config.DBDir())
	if err != nil {
		return err
	}
	kv := store.NewKVStoreWithDB(db, logger)
	defer kv.Close()

	if err := smallbank.Deploy(kv); err != nil {
		return err
	}
	for i := 1; i <= accountSum; i++ {
		name := fmt.Sprintf("username%v", i)
		if err := smallbank.InitAccount(kv, name, int64(i), initialBalance, initialBalance); err != nil {
			return err
		}
	}
	logger.Info("Initialized smallbank accounts", "sum", accountSum, "dir", config.DBDir())
	return nil
}
