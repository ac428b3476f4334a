// internal/service/campaign/domain/port/notifier.go
package port

import "context"

// AllocationEvent 在奖励发放成功后对外广播，供通知等下游系统消费
type AllocationEvent struct {
	AllocationID string  `json:"allocationId"`
	TenantID     string  `json:"tenantId"`
	OrderID      string  `json:"orderId"`
	RuleID       int64   `json:"ruleId"`
	MemberID     string  `json:"memberId"`
	RewardType   string  `json:"rewardType"`
	VoucherCode  string  `json:"voucherCode,omitempty"`
	PointsAmount int64   `json:"pointsAmount,omitempty"`
	Cost         float64 `json:"cost"`
}

// AllocationNotifier 是发放事件的出站端口（Kafka 适配器实现）
type AllocationNotifier interface {
	PublishAllocated(ctx context.Context, event *AllocationEvent) error
}
