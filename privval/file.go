package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"
	"go.dedis.ch/kyber/v3"

	"dpos_demo/crypto"
	"dpos_demo/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of the miner key.
type FilePVKey struct {
	Address types.Address    `json:"address"`
	PubKey  string           `json:"pub_key"` // hex，同时作为出块者的标识
	PrivKey tmbytes.HexBytes `json:"priv_key"`

	privKey  kyber.Scalar
	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save miner key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePV 出块者的私钥，用于区块签名以及解密别人发来的in value share
// NOTE: the directory containing pv.Key.filePath must already exist.
type FilePV struct {
	Key FilePVKey
}

// NewFilePV generates a new miner key from the given private key and path.
func NewFilePV(privKey kyber.Scalar, keyFilePath string) *FilePV {
	pubKey := crypto.PointToHex(crypto.PubKey(privKey))
	return &FilePV{
		Key: FilePVKey{
			Address:  types.AddressFromString(pubKey),
			PubKey:   pubKey,
			PrivKey:  crypto.ScalarToBytes(privKey),
			privKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV generates a new miner key with randomly generated private key
// and sets the filePath, but does not call Save().
func GenFilePV(keyFilePath string) *FilePV {
	return NewFilePV(crypto.GenPrivKey(), keyFilePath)
}

// LoadFilePV loads a FilePV from the filePath. If the file does not exist,
// the program will exit.
func LoadFilePV(keyFilePath string) *FilePV {
	pv, err := loadFilePV(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	return pv
}

func loadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, fmt.Errorf("error reading miner key from %v: %v", keyFilePath, err)
	}

	priv, err := crypto.ScalarFromBytes(pvKey.PrivKey)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid private key in %v", keyFilePath)
	}
	// overwrite pubkey and address for convenience
	pv := NewFilePV(priv, keyFilePath)
	return pv, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePath
// or else generates a new one and saves it to the filePath.
func LoadOrGenFilePV(keyFilePath string) *FilePV {
	var pv *FilePV
	if tmos.FileExists(keyFilePath) {
		pv = LoadFilePV(keyFilePath)
	} else {
		pv = GenFilePV(keyFilePath)
		pv.Save()
	}
	return pv
}

// GetAddress returns the address of the miner.
func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

// GetPubKey returns the hex public key of the miner.
func (pv *FilePV) GetPubKey() string {
	return pv.Key.PubKey
}

// Decrypt implements cstypes.ShareDecrypter
func (pv *FilePV) Decrypt(ciphertext []byte) ([]byte, error) {
	return crypto.Decrypt(pv.Key.privKey, ciphertext)
}

// SignBlock 对区块hash签名，区块头必须已经填好
func (pv *FilePV) SignBlock(block *types.Block) error {
	if block.MinerPubKey != pv.Key.PubKey {
		return fmt.Errorf("block miner %v is not %v", block.MinerPubKey, pv.Key.PubKey)
	}
	sig, err := crypto.Sign(pv.Key.privKey, block.Hash())
	if err != nil {
		return fmt.Errorf("error signing block: %v", err)
	}
	block.Signature = sig
	return nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"MinerKey{%v}",
		pv.GetAddress(),
	)
}

//------------------------------------------------------------------------------------

// VerifyBlockSignature 用区块头中的出块者公钥校验签名
func VerifyBlockSignature(block *types.Block) error {
	if len(block.Signature) == 0 {
		return errors.New("block had no signature")
	}
	return crypto.Verify(block.MinerPubKey, block.Hash(), block.Signature)
}
