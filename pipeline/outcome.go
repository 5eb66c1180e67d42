package pipeline

import "github.com/BaSui01/meshflow/types"

// OutcomeKind 单个条目的处理结果分类
type OutcomeKind string

const (
	KindOK               OutcomeKind = "ok"
	KindScanError        OutcomeKind = "scan_error"
	KindConversionError  OutcomeKind = "conversion_error"
	KindPolicySkip       OutcomeKind = "policy_skip"
	KindAnalysisDegraded OutcomeKind = "analysis_degraded"
	KindStoreWriteError  OutcomeKind = "store_write_error"
	KindSetupError       OutcomeKind = "setup_error"
)

// Failed 是否计入失败数
func (k OutcomeKind) Failed() bool {
	switch k {
	case KindScanError, KindConversionError, KindStoreWriteError, KindSetupError:
		return true
	default:
		return false
	}
}

// Inserted 是否已写入两个存储
func (k OutcomeKind) Inserted() bool {
	return k == KindOK || k == KindAnalysisDegraded
}

// Outcome 单步处理结果。Status 是对外的状态字符串，Err 保留原始错误链。
type Outcome struct {
	Kind   OutcomeKind  `json:"kind"`
	Status types.Status `json:"status"`
	Err    error        `json:"-"`
}

func failure(kind OutcomeKind, status types.Status, err error) Outcome {
	return Outcome{Kind: kind, Status: status, Err: err}
}
