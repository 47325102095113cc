// Package fraud implements the rule-based screening applied to outgoing
// transfers. It is a single amount threshold, not a scoring model.
package fraud

import "IVA-Bank/internal/bank"

// DefaultThreshold 为默认的高额交易阈值（美元）。
const DefaultThreshold = 5000

// Status 表示筛查结论。
type Status string

const (
	StatusClean   Status = "Clean"
	StatusFlagged Status = "Flagged"
)

// Verdict 是一次筛查的结果，字段与工具返回的 JSON 保持一致。
type Verdict struct {
	Status         Status `json:"status"`
	Reason         string `json:"reason"`
	ActionRequired string `json:"action_required,omitempty"`
}

// Flagged 判断是否被标记。
func (v Verdict) Flagged() bool { return v.Status == StatusFlagged }

// Checker 按金额阈值筛查交易。
type Checker struct {
	Threshold bank.Cents
}

// NewChecker 创建筛查器，threshold 以美元计，非正数时使用默认值。
func NewChecker(threshold float64) *Checker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Checker{Threshold: bank.FromDollars(threshold)}
}

// Requires 判断该金额是否必须先经过筛查。
func (c *Checker) Requires(amount bank.Cents) bool {
	return amount > c.threshold()
}

// Check 筛查一笔交易，金额严格大于阈值时标记。
func (c *Checker) Check(_ string, amount bank.Cents) Verdict {
	if c.Requires(amount) {
		return Verdict{
			Status:         StatusFlagged,
			Reason:         "High value transaction",
			ActionRequired: "Email confirmation sent to customer as per policy.",
		}
	}
	return Verdict{Status: StatusClean, Reason: "Normal transaction pattern"}
}

func (c *Checker) threshold() bank.Cents {
	if c == nil || c.Threshold <= 0 {
		return bank.FromDollars(DefaultThreshold)
	}
	return c.Threshold
}
