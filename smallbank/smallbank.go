package smallbank

import (
	"context"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"dpos_demo/state"
	"dpos_demo/types"
)

const (
	Category = int32(0)

	MethodInitAccount     = "init_account"
	MethodBalance         = "balance"
	MethodDepositChecking = "deposit_checking"
	MethodTransactSaving  = "transact_saving"
	MethodAmalgamate      = "amalgamate"
	MethodWriteCheck      = "write_check"
	MethodSendPayment     = "send_payment"
	MethodChargeFee       = "charge_fee"

	DefaultFee = int64(1)
)

// table definition：
// account table: path=account/{name}; value=strconv(customID)
// saving table: path=saving/{customID}; value=strconv(balance)
// checking table: path=checking/{customID}; value=strconv(balance)
const (
	tableAccount  = "account/"
	tableSaving   = "saving/"
	tableChecking = "checking/"
)

var (
	Address  = types.AddressFromString("dpos_demo.contract.smallbank")
	CodeHash = types.HashFromString("dpos_demo.contract.smallbank.v1")

	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExist      = errors.New("account already exist")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownMethod     = errors.New("unknown method")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Params 所有方法共用的参数，未用到的字段为空
type Params struct {
	Name     string `json:"name"`
	Dest     string `json:"dest,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Saving   int64  `json:"saving,omitempty"`
	Checking int64  `json:"checking,omitempty"`
	CustomID int64  `json:"custom_id,omitempty"`
}

func (p Params) Bytes() []byte {
	bz, _ := jsoniter.Marshal(p)
	return bz
}

func DecodeParams(bz []byte) (Params, error) {
	var p Params
	err := jsoniter.Unmarshal(bz, &p)
	return p, err
}

// NewTx 构造一笔调用smallbank的交易
func NewTx(from types.Address, method string, params Params) *types.Transaction {
	return types.NewTransaction(from, Address, method, params.Bytes())
}

//-----------------------------------------------------------------------------

var descriptors = []*state.MethodDescriptor{
	{Name: MethodInitAccount},
	{Name: MethodBalance, IsView: true},
	{Name: MethodDepositChecking, Fee: DefaultFee},
	{Name: MethodTransactSaving, Fee: DefaultFee},
	{Name: MethodAmalgamate, Fee: DefaultFee},
	{Name: MethodWriteCheck, Fee: DefaultFee},
	{Name: MethodSendPayment, Fee: DefaultFee},
	// 收费交易本身不收费
	{Name: MethodChargeFee},
}

// Executive smallbank合约，不持有任何调用间的状态
type Executive struct {
	codeHash types.Hash
}

var _ state.Executive = (*Executive)(nil)

func (e *Executive) Descriptors() []*state.MethodDescriptor {
	return descriptors
}

func (e *Executive) CodeHash() types.Hash {
	return e.codeHash
}

func (e *Executive) Reset() {}

func (e *Executive) Apply(ctx context.Context, txCtx *state.TransactionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := DecodeParams(txCtx.Transaction.Params)
	if err != nil {
		return errors.Wrap(err, "decode params")
	}
	b := bank{txCtx}

	switch method := txCtx.Transaction.MethodName; method {
	case MethodInitAccount:
		return b.initAccount(p.Name, p.CustomID, p.Saving, p.Checking)
	case MethodBalance:
		return b.balance(p.Name)
	case MethodDepositChecking:
		return b.depositChecking(p.Name, p.Amount)
	case MethodTransactSaving:
		return b.transactSaving(p.Name, p.Amount)
	case MethodAmalgamate:
		return b.amalgamate(p.Name, p.Dest)
	case MethodWriteCheck:
		return b.writeCheck(p.Name, p.Amount)
	case MethodSendPayment:
		return b.sendPayment(p.Name, p.Dest, p.Amount)
	case MethodChargeFee:
		return b.chargeFee(p.Name, p.Amount)
	default:
		return errors.Wrapf(ErrUnknownMethod, "%v", method)
	}
}

//-----------------------------------------------------------------------------

type bank struct {
	txCtx *state.TransactionContext
}

func (b bank) getInt(path string) (int64, bool, error) {
	bz, ok, err := b.txCtx.GetState(path)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(string(bz), 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse %v", path)
	}
	return v, true, nil
}

func (b bank) setInt(path string, v int64) {
	b.txCtx.SetState(path, []byte(strconv.FormatInt(v, 10)))
}

func (b bank) customID(name string) (string, error) {
	id, ok, err := b.getInt(tableAccount + name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Wrapf(ErrAccountNotFound, "%v", name)
	}
	return strconv.FormatInt(id, 10), nil
}

func (b bank) checking(id string) (int64, error) {
	v, _, err := b.getInt(tableChecking + id)
	return v, err
}

func (b bank) saving(id string) (int64, error) {
	v, _, err := b.getInt(tableSaving + id)
	return v, err
}

func (b bank) total(id string) (int64, error) {
	s, err := b.saving(id)
	if err != nil {
		return 0, err
	}
	c, err := b.checking(id)
	if err != nil {
		return 0, err
	}
	return s + c, nil
}

func (b bank) initAccount(name string, customID, saving, checking int64) error {
	if _, ok, err := b.getInt(tableAccount + name); err != nil {
		return err
	} else if ok {
		return errors.Wrapf(ErrAccountExist, "%v", name)
	}
	id := strconv.FormatInt(customID, 10)
	b.setInt(tableAccount+name, customID)
	b.setInt(tableSaving+id, saving)
	b.setInt(tableChecking+id, checking)
	b.txCtx.FireLogEvent("AccountCreated", []byte(name))
	return nil
}

func (b bank) balance(name string) error {
	id, err := b.customID(name)
	if err != nil {
		return err
	}
	total, err := b.total(id)
	if err != nil {
		return err
	}
	b.txCtx.SetReturnValue([]byte(strconv.FormatInt(total, 10)))
	return nil
}

func (b bank) depositChecking(name string, amount int64) error {
	if amount < 0 {
		return errors.Wrapf(ErrInvalidAmount, "%d", amount)
	}
	id, err := b.customID(name)
	if err != nil {
		return err
	}
	preBal, err := b.checking(id)
	if err != nil {
		return err
	}
	b.setInt(tableChecking+id, preBal+amount)
	return nil
}

// transactSaving amount可以为负，余额不能小于0
func (b bank) transactSaving(name string, amount int64) error {
	id, err := b.customID(name)
	if err != nil {
		return err
	}
	preBal, err := b.saving(id)
	if err != nil {
		return err
	}
	if preBal+amount < 0 {
		return errors.Wrapf(ErrInsufficientFunds, "saving of %v", name)
	}
	b.setInt(tableSaving+id, preBal+amount)
	return nil
}

// amalgamate 把name的全部余额转入dest的checking
func (b bank) amalgamate(name, dest string) error {
	id1, err := b.customID(name)
	if err != nil {
		return err
	}
	id2, err := b.customID(dest)
	if err != nil {
		return err
	}
	total, err := b.total(id1)
	if err != nil {
		return err
	}
	preBal, err := b.checking(id2)
	if err != nil {
		return err
	}
	b.setInt(tableSaving+id1, 0)
	b.setInt(tableChecking+id1, 0)
	b.setInt(tableChecking+id2, preBal+total)
	return nil
}

// writeCheck 总余额不足时额外罚1
func (b bank) writeCheck(name string, amount int64) error {
	id, err := b.customID(name)
	if err != nil {
		return err
	}
	total, err := b.total(id)
	if err != nil {
		return err
	}
	preBal, err := b.checking(id)
	if err != nil {
		return err
	}
	if total <= amount {
		preBal -= amount + 1
	} else {
		preBal -= amount
	}
	b.setInt(tableChecking+id, preBal)
	return nil
}

func (b bank) sendPayment(name, dest string, amount int64) error {
	if amount < 0 {
		return errors.Wrapf(ErrInvalidAmount, "%d", amount)
	}
	id1, err := b.customID(name)
	if err != nil {
		return err
	}
	id2, err := b.customID(dest)
	if err != nil {
		return err
	}
	from, err := b.checking(id1)
	if err != nil {
		return err
	}
	if from < amount {
		return errors.Wrapf(ErrInsufficientFunds, "checking of %v", name)
	}
	to, err := b.checking(id2)
	if err != nil {
		return err
	}
	b.setInt(tableChecking+id1, from-amount)
	b.setInt(tableChecking+id2, to+amount)
	return nil
}

// chargeFee 手续费直接销毁
func (b bank) chargeFee(name string, fee int64) error {
	id, err := b.customID(name)
	if err != nil {
		return err
	}
	preBal, err := b.checking(id)
	if err != nil {
		return err
	}
	if preBal < fee {
		return errors.Wrapf(ErrInsufficientFunds, "fee of %v", name)
	}
	b.setInt(tableChecking+id, preBal-fee)
	b.txCtx.FireLogEvent("FeeCharged", []byte(strconv.FormatInt(fee, 10)))
	return nil
}

//-----------------------------------------------------------------------------

// Runner 创建smallbank executive
type Runner struct{}

var _ state.Runner = Runner{}

func (Runner) Category() int32 {
	return Category
}

func (Runner) Run(reg *state.Registration) (state.Executive, error) {
	if reg.Category != Category {
		return nil, errors.Errorf("wrong category %d", reg.Category)
	}
	return &Executive{codeHash: reg.CodeHash}, nil
}
