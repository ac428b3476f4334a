// internal/service/referral/application/dto.go
package application

// ApplyRequest 是被推荐人绑定推荐码的请求。
// 被推荐人此刻往往还不是会员，用邮箱/手机号/姓名做身份线索；
// 邮箱能解析到会员时立即绑定，否则留到首单时回填。
type ApplyRequest struct {
	TenantID      string `json:"tenant_id"`
	ReferralCode  string `json:"referral_code"`
	ReferredEmail string `json:"referred_email,omitempty"`
	ReferredPhone string `json:"referred_phone,omitempty"`
	ReferredName  string `json:"referred_name,omitempty"`
}

// ApplyResponse 返回新建的 pending 推荐关系。
// ReferredMemberID 仅在被推荐人已经是会员时返回。
type ApplyResponse struct {
	ReferralID       int64  `json:"referral_id"`
	ReferrerMemberID string `json:"referrer_member_id"`
	ReferredMemberID string `json:"referred_member_id,omitempty"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expires_at"`
}

// CompleteRequest 在被推荐人的已支付订单到达时尝试完成推荐。
// Email 用于匹配绑定时还不是会员的被推荐人。
type CompleteRequest struct {
	TenantID    string  `json:"tenant_id"`
	MemberID    string  `json:"member_id"`
	Email       string  `json:"email,omitempty"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount"`
}

// CompleteResponse 与活动服务侧的出站端口契约一致
type CompleteResponse struct {
	Success         bool   `json:"success"`
	Skipped         bool   `json:"skipped"`
	Reason          string `json:"reason,omitempty"`
	ReferrerPoints  int64  `json:"referrer_points,omitempty"`
	RefereePoints   int64  `json:"referee_points,omitempty"`
	ReferrerBalance int64  `json:"referrer_balance,omitempty"`
	RefereeBalance  int64  `json:"referee_balance,omitempty"`
}

// CodeResponse 返回会员的专属推荐码
type CodeResponse struct {
	MemberID string `json:"member_id"`
	Code     string `json:"code"`
}
