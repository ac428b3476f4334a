// internal/service/campaign/domain/allocation.go
package domain

import "time"

// AllocationStatus 是发放记录的生命周期状态
type AllocationStatus string

const (
	AllocationPending AllocationStatus = "PENDING" // delayed 发放，等待发货事件
	AllocationIssued  AllocationStatus = "ISSUED"  // 已发放（click 领取方式下尚未领取）
	AllocationClaimed AllocationStatus = "CLAIMED" // 用户已领取
)

// Allocation 是一次具体的奖励发放。
// 幂等键是 (OrderID, RuleID)：同一订单同一规则最多发放一次，
// 由数据库唯一约束兜底，重复投递的 webhook 不可能产生双重发放。
type Allocation struct {
	ID       string // uuid
	TenantID string
	OrderID  string
	RuleID   int64
	MemberID string

	RewardType RewardType
	Status     AllocationStatus

	VoucherCode  string
	PointsAmount int64
	Cost         float64 // 对预算的实际扣减

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllocationResult 是发放操作的返回值。
// Deduplicated 为 true 表示命中了幂等键，返回的是当初的发放记录；
// Rejection 非 nil 表示护栏拒绝了本次发放，此时其余字段为空。
type AllocationResult struct {
	Allocation   *Allocation
	Deduplicated bool
	Rejection    *GuardrailDecision
	NewBalance   int64 // 积分类奖励发放后的新余额
}

// GuardrailDecision 是护栏预占的结论。
// Allowed 为 false 时 Result/Reason 描述拒绝原因——这是业务结果，不是错误。
type GuardrailDecision struct {
	Allowed bool
	Result  TriggerResult
	Reason  string
}

// GuardrailOK 构造放行结论
func GuardrailOK() GuardrailDecision {
	return GuardrailDecision{Allowed: true, Result: TriggerSuccess}
}

// GuardrailRejected 构造拒绝结论
func GuardrailRejected(result TriggerResult, reason string) GuardrailDecision {
	return GuardrailDecision{Allowed: false, Result: result, Reason: reason}
}
