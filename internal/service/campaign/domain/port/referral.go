// internal/service/campaign/domain/port/referral.go
package port

import "context"

// CompleteReferralRequest 在已支付订单到达时尝试完成推荐。
// Email 用于把注册时还不是会员的被推荐人匹配到推荐记录上。
type CompleteReferralRequest struct {
	TenantID    string  `json:"tenant_id"`
	MemberID    string  `json:"member_id"`
	Email       string  `json:"email,omitempty"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount"`
}

// CompleteReferralResponse 是推荐完成的结论。
// Skipped 为 true 时 Reason 说明为什么没有完成（不是首单、已过期等），
// 这些都是终态业务结果，调用方不应重试。
type CompleteReferralResponse struct {
	Success         bool   `json:"success"`
	Skipped         bool   `json:"skipped"`
	Reason          string `json:"reason,omitempty"`
	ReferrerPoints  int64  `json:"referrer_points,omitempty"`
	RefereePoints   int64  `json:"referee_points,omitempty"`
	ReferrerBalance int64  `json:"referrer_balance,omitempty"`
	RefereeBalance  int64  `json:"referee_balance,omitempty"`
}

// ReferralService 是推荐服务的出站端口
type ReferralService interface {
	CompleteForOrder(ctx context.Context, req *CompleteReferralRequest) (*CompleteReferralResponse, error)
}
