package types

import (
	"math"

	jsoniter "github.com/json-iterator/go"

	types "dpos_demo/types"
)

//-----------------------------------------------------------------------------
// Behaviour

// Behaviour 出块者在当前时刻应该执行的共识动作
type Behaviour uint8

const (
	BehaviourInvalid                           = Behaviour(0x00)
	BehaviourUpdateValueWithoutPreviousInValue = Behaviour(0x01) // 只在第1轮
	BehaviourUpdateValue                       = Behaviour(0x02)
	BehaviourNextRound                         = Behaviour(0x03)
	BehaviourNextTerm                          = Behaviour(0x04)
)

func (b Behaviour) String() string {
	switch b {
	case BehaviourUpdateValueWithoutPreviousInValue:
		return "UpdateValueWithoutPreviousInValue"
	case BehaviourUpdateValue:
		return "UpdateValue"
	case BehaviourNextRound:
		return "NextRound"
	case BehaviourNextTerm:
		return "NextTerm"
	default:
		return "Invalid"
	}
}

func (b Behaviour) IsUpdateValue() bool {
	return b == BehaviourUpdateValue || b == BehaviourUpdateValueWithoutPreviousInValue
}

// ConsensusCommand 告诉出块者多久之后出块，以及出块的时限
type ConsensusCommand struct {
	CountingMilliseconds int32     `json:"counting_milliseconds"`
	TimeoutMilliseconds  int32     `json:"timeout_milliseconds"`
	Behaviour            Behaviour `json:"behaviour"`
}

// InvalidCommand 永远不会出块
func InvalidCommand() ConsensusCommand {
	return ConsensusCommand{
		CountingMilliseconds: math.MaxInt32,
		TimeoutMilliseconds:  0,
		Behaviour:            BehaviourInvalid,
	}
}

type ValidationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ValidationOK() ValidationResult {
	return ValidationResult{Success: true}
}

func ValidationFailed(msg string) ValidationResult {
	return ValidationResult{Success: false, Message: msg}
}

//-----------------------------------------------------------------------------
// trigger & payload

// ShareDecrypter 用自己的私钥解密别人发来的share
type ShareDecrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// TriggerInformation 出块时由节点提供给共识的本地信息
type TriggerInformation struct {
	PublicKey          string
	Behaviour          Behaviour
	RandomHash         types.Hash
	PreviousRandomHash types.Hash // 上一轮使用的随机数，可以为空
	Decrypter          ShareDecrypter
}

// ConsensusInformation 随区块广播的共识数据
type ConsensusInformation struct {
	SenderPublicKey string    `json:"sender_public_key"`
	Behaviour       Behaviour `json:"behaviour"`
	Round           *Round    `json:"round"`
}

func (ci *ConsensusInformation) Bytes() ([]byte, error) {
	return jsoniter.Marshal(ci)
}

func ConsensusInformationFromBytes(bz []byte) (*ConsensusInformation, error) {
	ci := &ConsensusInformation{}
	if err := jsoniter.Unmarshal(bz, ci); err != nil {
		return nil, err
	}
	return ci, nil
}
