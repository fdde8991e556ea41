package types

import (
	"sort"

	"github.com/tendermint/tendermint/crypto/merkle"

	types "dpos_demo/types"
)

// Miners 某个term的出块者集合快照
type Miners struct {
	TermNumber uint64   `json:"term_number"`
	PublicKeys []string `json:"public_keys"`
}

func ToMiners(pubKeys []string, termNumber uint64) *Miners {
	keys := make([]string, len(pubKeys))
	copy(keys, pubKeys)
	return &Miners{TermNumber: termNumber, PublicKeys: keys}
}

func (m *Miners) Copy() *Miners {
	if m == nil {
		return nil
	}
	return ToMiners(m.PublicKeys, m.TermNumber)
}

// GetMinersHash 排序后的公钥作为merkle叶子，与插入顺序无关
func (m *Miners) GetMinersHash() types.Hash {
	keys := make([]string, len(m.PublicKeys))
	copy(keys, m.PublicKeys)
	sort.Strings(keys)
	leaves := make([][]byte, len(keys))
	for i, k := range keys {
		leaves[i] = []byte(k)
	}
	return merkle.HashFromByteSlices(leaves)
}

func (m *Miners) Contains(pubKey string) bool {
	for _, k := range m.PublicKeys {
		if k == pubKey {
			return true
		}
	}
	return false
}

func (m *Miners) Count() int {
	if m == nil {
		return 0
	}
	return len(m.PublicKeys)
}
