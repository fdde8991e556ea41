package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpos_demo/crypto"
	"dpos_demo/types"
)

type cleanup func()

func tempKeyFile(t *testing.T) (string, cleanup) {
	dir, err := ioutil.TempDir("", "privval_test")
	require.NoError(t, err)
	return filepath.Join(dir, "miner_key.json"), func() { os.RemoveAll(dir) }
}

func TestSaveAndLoadFilePV(t *testing.T) {
	keyFilePath, cleanup := tempKeyFile(t)
	defer cleanup()

	filePV := GenFilePV(keyFilePath)
	filePV.Save()

	loaded, err := loadFilePV(keyFilePath)
	require.NoError(t, err)
	assert.Equal(t, filePV.GetPubKey(), loaded.GetPubKey())
	assert.Equal(t, filePV.GetAddress(), loaded.GetAddress())
	assert.Equal(t, filePV.Key.PrivKey, loaded.Key.PrivKey)

	// 已经存在时直接读取
	again := LoadOrGenFilePV(keyFilePath)
	assert.Equal(t, filePV.GetPubKey(), again.GetPubKey())

	_, err = loadFilePV(keyFilePath + ".missing")
	assert.Error(t, err)
}

func TestDecryptShare(t *testing.T) {
	keyFilePath, cleanup := tempKeyFile(t)
	defer cleanup()
	filePV := GenFilePV(keyFilePath)

	msg := []byte("in value share")
	ciphertext, err := crypto.Encrypt(filePV.GetPubKey(), msg)
	require.NoError(t, err)

	plain, err := filePV.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	other := GenFilePV(keyFilePath)
	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err, "其他出块者不能解密")
}

func TestSignBlock(t *testing.T) {
	keyFilePath, cleanup := tempKeyFile(t)
	defer cleanup()
	filePV := GenFilePV(keyFilePath)

	block := types.MakeGenesisBlock("privval_test", time.Now())
	block.Height = 1
	block.MinerPubKey = filePV.GetPubKey()
	require.NoError(t, filePV.SignBlock(block))
	assert.NoError(t, VerifyBlockSignature(block))

	// 签名不能用于其他区块
	forged := types.MakeGenesisBlock("privval_test", time.Now())
	forged.Height = 2
	forged.MinerPubKey = filePV.GetPubKey()
	forged.Signature = block.Signature
	assert.Error(t, VerifyBlockSignature(forged))

	// 不能替别人签名
	block.MinerPubKey = GenFilePV(keyFilePath).GetPubKey()
	assert.Error(t, filePV.SignBlock(block))
}
