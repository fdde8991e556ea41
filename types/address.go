package types

import (
	"encoding/hex"

	"github.com/tendermint/tendermint/crypto/tmhash"
)

// Address 合约或账户地址，公钥hash截断后的hex
type Address string

func AddressFromPublicKey(pub []byte) Address {
	return Address(hex.EncodeToString(tmhash.SumTruncated(pub)))
}

// AddressFromString 用于系统合约等没有公钥的地址
func AddressFromString(name string) Address {
	return Address(hex.EncodeToString(tmhash.SumTruncated([]byte(name))))
}

func (addr Address) Equal(other Address) bool {
	if addr.IsEmpty() || other.IsEmpty() {
		return false
	}
	return addr == other
}

func (addr Address) IsEmpty() bool {
	return addr == ""
}

func (addr Address) String() string {
	return string(addr)
}
