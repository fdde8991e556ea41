package types

// ExecutionStatus 交易执行状态
// Undefined -> (Prefailed | Executed | ContractError | Postfailed | Canceled)
type ExecutionStatus int

const (
	ExecutionUndefined ExecutionStatus = iota
	ExecutionExecuted
	ExecutionContractError
	ExecutionPrefailed
	ExecutionPostfailed
	ExecutionCanceled
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionExecuted:
		return "Executed"
	case ExecutionContractError:
		return "ContractError"
	case ExecutionPrefailed:
		return "Prefailed"
	case ExecutionPostfailed:
		return "Postfailed"
	case ExecutionCanceled:
		return "Canceled"
	default:
		return "Undefined"
	}
}

// StateSet 一次调用产生的读写集合
type StateSet struct {
	Writes  map[string][]byte `json:"writes"`
	Deletes map[string]bool   `json:"deletes"`
	Reads   map[string]bool   `json:"reads"`
}

func NewStateSet() *StateSet {
	return &StateSet{
		Writes:  make(map[string][]byte),
		Deletes: make(map[string]bool),
		Reads:   make(map[string]bool),
	}
}

// LogEvent 合约产生的日志
type LogEvent struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
	Data    []byte  `json:"data"`
}

type TransactionTrace struct {
	TransactionID   Hash            `json:"transaction_id"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	Error           string          `json:"error"`
	ReturnValue     []byte          `json:"return_value"`
	StateSet        *StateSet       `json:"state_set"`
	Logs            []*LogEvent     `json:"logs"`

	InlineTransactions Txs                 `json:"inline_transactions"`
	PreTransactions    Txs                 `json:"pre_transactions"`
	PostTransactions   Txs                 `json:"post_transactions"`
	PreTraces          []*TransactionTrace `json:"pre_traces"`
	InlineTraces       []*TransactionTrace `json:"inline_traces"`
	PostTraces         []*TransactionTrace `json:"post_traces"`
}

func NewTransactionTrace(txID Hash) *TransactionTrace {
	return &TransactionTrace{
		TransactionID: txID,
		StateSet:      NewStateSet(),
	}
}

// IsSuccessful 自身执行成功，且所有pre/inline/post调用均成功
func (t *TransactionTrace) IsSuccessful() bool {
	if t.ExecutionStatus != ExecutionExecuted {
		return false
	}
	for _, sub := range t.PreTraces {
		if !sub.IsSuccessful() {
			return false
		}
	}
	for _, sub := range t.InlineTraces {
		if !sub.IsSuccessful() {
			return false
		}
	}
	for _, sub := range t.PostTraces {
		if !sub.IsSuccessful() {
			return false
		}
	}
	return true
}

// IsCanceled 自身或任意inline调用被取消
func (t *TransactionTrace) IsCanceled() bool {
	if t.ExecutionStatus == ExecutionCanceled {
		return true
	}
	for _, sub := range t.InlineTraces {
		if sub.IsCanceled() {
			return true
		}
	}
	return false
}

// SurfaceUpError 将inline调用的失败状态和错误信息上浮到当前trace
func (t *TransactionTrace) SurfaceUpError() {
	for _, inline := range t.InlineTraces {
		inline.SurfaceUpError()
		if t.ExecutionStatus == ExecutionExecuted && inline.ExecutionStatus != ExecutionExecuted {
			t.ExecutionStatus = inline.ExecutionStatus
			t.Error = inline.Error
		}
	}
}

// GetFlattenedWrites 按 pre -> self -> inline -> post 的顺序展开写集合，
// 后写覆盖先写，nil表示删除。只收集成功的子调用
func (t *TransactionTrace) GetFlattenedWrites() map[string][]byte {
	writes := make(map[string][]byte)
	t.flattenWrites(writes)
	return writes
}

func (t *TransactionTrace) flattenWrites(writes map[string][]byte) {
	for _, pre := range t.PreTraces {
		if pre.IsSuccessful() {
			pre.flattenWrites(writes)
		}
	}
	t.ownWrites(writes)
	for _, inline := range t.InlineTraces {
		if inline.IsSuccessful() {
			inline.flattenWrites(writes)
		}
	}
	for _, post := range t.PostTraces {
		if post.IsSuccessful() {
			post.flattenWrites(writes)
		}
	}
}

func (t *TransactionTrace) ownWrites(writes map[string][]byte) {
	if t.StateSet == nil {
		return
	}
	for k, v := range t.StateSet.Writes {
		writes[k] = v
	}
	for k := range t.StateSet.Deletes {
		writes[k] = nil
	}
}

func (t *TransactionTrace) GetFlattenedReads() map[string]bool {
	reads := make(map[string]bool)
	t.flattenReads(reads)
	return reads
}

func (t *TransactionTrace) flattenReads(reads map[string]bool) {
	for _, sub := range t.PreTraces {
		sub.flattenReads(reads)
	}
	if t.StateSet != nil {
		for k := range t.StateSet.Reads {
			reads[k] = true
		}
	}
	for _, sub := range t.InlineTraces {
		sub.flattenReads(reads)
	}
	for _, sub := range t.PostTraces {
		sub.flattenReads(reads)
	}
}

// FlattenedLogs 同样的展开顺序收集日志
func (t *TransactionTrace) FlattenedLogs() []*LogEvent {
	var logs []*LogEvent
	for _, sub := range t.PreTraces {
		logs = append(logs, sub.FlattenedLogs()...)
	}
	logs = append(logs, t.Logs...)
	for _, sub := range t.InlineTraces {
		logs = append(logs, sub.FlattenedLogs()...)
	}
	for _, sub := range t.PostTraces {
		logs = append(logs, sub.FlattenedLogs()...)
	}
	return logs
}

// PluginLogs 成功的pre/post调用的日志
func (t *TransactionTrace) PluginLogs() []*LogEvent {
	var logs []*LogEvent
	for _, sub := range t.PreTraces {
		if sub.IsSuccessful() {
			logs = append(logs, sub.FlattenedLogs()...)
		}
	}
	for _, sub := range t.PostTraces {
		if sub.IsSuccessful() {
			logs = append(logs, sub.FlattenedLogs()...)
		}
	}
	return logs
}
