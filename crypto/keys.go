package crypto

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/encrypt/ecies"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/schnorr"
)

// 所有出块者共用的ed25519 suite
var suite = edwards25519.NewBlakeSHA256Ed25519()

func Suite() *edwards25519.SuiteEd25519 {
	return suite
}

// GenPrivKey 随机生成私钥
func GenPrivKey() kyber.Scalar {
	return suite.Scalar().Pick(suite.RandomStream())
}

func PubKey(priv kyber.Scalar) kyber.Point {
	return suite.Point().Mul(priv, nil)
}

func PointToHex(p kyber.Point) string {
	bz, err := p.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(bz)
}

func PointFromHex(s string) (kyber.Point, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid public key %q", s)
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(bz); err != nil {
		return nil, errors.Wrapf(err, "invalid public key %q", s)
	}
	return p, nil
}

func ScalarToBytes(s kyber.Scalar) []byte {
	bz, err := s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return bz
}

func ScalarFromBytes(bz []byte) (kyber.Scalar, error) {
	s := suite.Scalar()
	if err := s.UnmarshalBinary(bz); err != nil {
		return nil, err
	}
	return s, nil
}

// Encrypt 使用对方公钥(hex)进行ECIES加密
func Encrypt(pubKeyHex string, msg []byte) ([]byte, error) {
	pub, err := PointFromHex(pubKeyHex)
	if err != nil {
		return nil, err
	}
	return ecies.Encrypt(suite, pub, msg, nil)
}

func Decrypt(priv kyber.Scalar, ciphertext []byte) ([]byte, error) {
	return ecies.Decrypt(suite, priv, ciphertext, nil)
}

func Sign(priv kyber.Scalar, msg []byte) ([]byte, error) {
	return schnorr.Sign(suite, priv, msg)
}

// Verify 校验公钥(hex)对msg的schnorr签名
func Verify(pubKeyHex string, msg, sig []byte) error {
	pub, err := PointFromHex(pubKeyHex)
	if err != nil {
		return err
	}
	return schnorr.Verify(suite, pub, msg, sig)
}
