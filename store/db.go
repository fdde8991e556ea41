package store

import (
	"fmt"

	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"
)

const (
	GoLevelDBBackend = "goleveldb"
	MemDBBackend     = "memdb"
)

// NewDB 按配置的后端打开数据库，memdb只用于测试
func NewDB(name, backend, dir string) (tmdb.DB, error) {
	switch backend {
	case GoLevelDBBackend, "":
		return leveldb.NewDB(name, dir)
	case MemDBBackend:
		return memdb.NewDB(), nil
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
}
