package smallbank

import (
	"strconv"

	"dpos_demo/state"
)

// Setter 直接写世界状态，store.KVStore实现
type Setter interface {
	Set(key string, value []byte) error
}

func NewRegistration() *state.Registration {
	return &state.Registration{
		Category: Category,
		CodeHash: CodeHash,
		Version:  1,
	}
}

// Deploy 在零号合约下写入smallbank的注册信息
func Deploy(db Setter) error {
	key, bz, err := state.RegistrationKV(Address, NewRegistration())
	if err != nil {
		return err
	}
	return db.Set(key, bz)
}

// InitAccount 不经过交易直接创建账户，用于init-db
func InitAccount(db Setter, name string, customID, saving, checking int64) error {
	id := strconv.FormatInt(customID, 10)
	kvs := []struct {
		path  string
		value int64
	}{
		{tableAccount + name, customID},
		{tableChecking + id, checking},
		{tableSaving + id, saving},
	}
	for _, kv := range kvs {
		if err := db.Set(state.ScopedKey(Address, kv.path), []byte(strconv.FormatInt(kv.value, 10))); err != nil {
			return err
		}
	}
	return nil
}
