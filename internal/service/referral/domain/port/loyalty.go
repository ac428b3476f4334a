// internal/service/referral/domain/port/loyalty.go
package port

import "context"

// CreditBonusRequest 给会员入账一笔固定数额的奖励积分
type CreditBonusRequest struct {
	TenantID        string `json:"tenant_id"`
	MemberID        string `json:"member_id"`
	Points          int64  `json:"points"`
	TransactionType string `json:"transaction_type"` // referral / referral_complete
	Reference       string `json:"reference"`
}

// CreditBonusResponse 返回入账后的新余额
type CreditBonusResponse struct {
	PointsCredited int64 `json:"points_credited"`
	NewBalance     int64 `json:"new_balance"`
}

// MemberStatusResponse 是会员忠诚度状态的只读快照
type MemberStatusResponse struct {
	Found          bool   `json:"found"`
	MemberID       string `json:"member_id"`
	Balance        int64  `json:"balance"`
	PaidOrderCount int64  `json:"paid_order_count"`
	Tier           string `json:"tier"`
}

// LoyaltyService 是积分服务的出站端口：
// 推荐完成时给双方入账，用持久化的订单计数判定"首单"，
// 并在绑定推荐码时把被推荐邮箱解析成会员。
type LoyaltyService interface {
	CreditBonus(ctx context.Context, req *CreditBonusRequest) (*CreditBonusResponse, error)
	GetMemberStatus(ctx context.Context, tenantID, memberID string) (*MemberStatusResponse, error)
	GetMemberStatusByEmail(ctx context.Context, tenantID, email string) (*MemberStatusResponse, error)
}
