package store

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tm-db/memdb"
)

func TestNewDBBackends(t *testing.T) {
	dir, err := ioutil.TempDir("", "db_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := NewDB("state", GoLevelDBBackend, dir)
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, db.Close())

	// 重新打开后数据仍然存在
	db, err = NewDB("state", GoLevelDBBackend, dir)
	require.NoError(t, err)
	v, err = db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v, "goleveldb持久化")
	require.NoError(t, db.Close())

	db, err = NewDB("state", MemDBBackend, "")
	require.NoError(t, err)
	assert.IsType(t, &memdb.MemDB{}, db)

	_, err = NewDB("state", "rocksdb", dir)
	assert.Error(t, err, "不支持的后端")
}
