// internal/service/campaign/domain/triggerlog.go
package domain

import "time"

// TriggerResult 是一次 (订单, 规则) 评估尝试的结论。
// 护栏拒绝也用它表达——拒绝不是错误，是预期内的业务结果。
type TriggerResult string

const (
	TriggerSuccess         TriggerResult = "success"
	TriggerFailed          TriggerResult = "failed"
	TriggerNoMember        TriggerResult = "no_member"
	TriggerAlreadyEnrolled TriggerResult = "already_enrolled"
	TriggerMaxReached      TriggerResult = "max_reached"
	TriggerBelowThreshold  TriggerResult = "below_threshold"
)

// TriggerLog 是审计轨迹：每次 (订单, 规则) 评估都写一行，无论结果如何。
// 商家通过它诊断"为什么这单没有触发活动"。
type TriggerLog struct {
	ID        int64
	TenantID  string
	OrderID   string
	RuleID    int64
	RuleName  string
	MemberID  string
	Result    TriggerResult
	Reason    string // 面向商家的可读原因
	Allocated bool   // 本次评估是否实际产生了发放
	CreatedAt time.Time
}

// TriggerLogFilter 是审计查询的过滤条件
type TriggerLogFilter struct {
	TenantID string
	OrderID  string
	RuleID   int64
	Result   TriggerResult
	Limit    int
}
