package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

func TestSecretSharingRoundTrip(t *testing.T) {
	secret := tmhash.Sum([]byte("in value"))
	k, n := 5, 7

	shares, err := EncodeSecret(secret, k, n)
	require.NoError(t, err)
	require.Len(t, shares, n)

	// 任意k份都能还原
	subsets := [][]int{
		{1, 2, 3, 4, 5},
		{3, 4, 5, 6, 7},
		{7, 1, 5, 2, 6},
		{1, 2, 3, 4, 5, 6, 7},
	}
	for _, orders := range subsets {
		picked := make([][]byte, len(orders))
		for i, o := range orders {
			picked[i] = shares[o-1]
		}
		recovered, err := DecodeSecret(picked, orders, k, n)
		require.NoError(t, err)
		assert.Equal(t, secret, recovered, "orders %v", orders)
	}
}

func TestSecretSharingNotEnoughShares(t *testing.T) {
	secret := tmhash.Sum([]byte("in value"))
	k, n := 3, 4
	shares, err := EncodeSecret(secret, k, n)
	require.NoError(t, err)

	_, err = DecodeSecret(shares[:k-1], []int{1, 2}, k, n)
	assert.Error(t, err, "k-1份不能还原")
}

func TestSecretSharingWrongOrders(t *testing.T) {
	secret := tmhash.Sum([]byte("in value"))
	shares, err := EncodeSecret(secret, 2, 3)
	require.NoError(t, err)

	// x坐标对应错误时得到的不是原值
	recovered, err := DecodeSecret(shares[:2], []int{2, 1}, 2, 3)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(secret, recovered))
}

func TestEncodeSecretInvalidInput(t *testing.T) {
	_, err := EncodeSecret([]byte("short"), 2, 3)
	assert.Equal(t, ErrInvalidSecret, err)

	_, err = EncodeSecret(tmhash.Sum(nil), 4, 3)
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	priv := GenPrivKey()
	pubHex := PointToHex(PubKey(priv))

	msg := []byte("share for you")
	ct, err := Encrypt(pubHex, msg)
	require.NoError(t, err)

	pt, err := Decrypt(priv, ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)

	_, err = Decrypt(GenPrivKey(), ct)
	assert.Error(t, err, "其他私钥不能解密")

	_, err = Encrypt("not hex", msg)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	priv := GenPrivKey()
	pubHex := PointToHex(PubKey(priv))
	msg := []byte("block hash")

	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	assert.NoError(t, Verify(pubHex, msg, sig))
	assert.Error(t, Verify(pubHex, []byte("other"), sig))
}
