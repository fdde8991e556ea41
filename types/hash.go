package types

import (
	"encoding/binary"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Hash 链上统一使用的32字节sha256摘要，json序列化为hex
// 空值(len == 0)表示未设置
type Hash = tmbytes.HexBytes

// HashOf 对多个字节片拼接后求hash
func HashOf(bzs ...[]byte) Hash {
	h := tmhash.New()
	for _, bz := range bzs {
		h.Write(bz)
	}
	return h.Sum(nil)
}

func HashFromString(s string) Hash {
	return tmhash.Sum([]byte(s))
}

func HashFromInt64(v int64) Hash {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return tmhash.Sum(buf)
}

// HashFromTwo hash(a || b)
func HashFromTwo(a, b Hash) Hash {
	return HashOf(a, b)
}

// HashToUint64 按大端读取hash的前8个字节，不足8字节时高位补零
func HashToUint64(h Hash) uint64 {
	if len(h) >= 8 {
		return binary.BigEndian.Uint64(h[:8])
	}
	buf := make([]byte, 8)
	copy(buf[8-len(h):], h)
	return binary.BigEndian.Uint64(buf)
}

func HashIsEmpty(h Hash) bool {
	return len(h) == 0
}

func CopyHash(h Hash) Hash {
	if h == nil {
		return nil
	}
	c := make(Hash, len(h))
	copy(c, h)
	return c
}
