// internal/service/loyalty/application/dto.go
package application

// CreditPointsRequest 是按规则参数计算的下单积分入账请求
type CreditPointsRequest struct {
	TenantID        string  `json:"tenant_id"`
	MemberID        string  `json:"member_id"`
	OrderID         string  `json:"order_id"`
	OrderAmount     float64 `json:"order_amount"`
	EarnRate        int64   `json:"earn_rate"`
	EarnDivisor     float64 `json:"earn_divisor"`
	TransactionType string  `json:"transaction_type"`
	Reference       string  `json:"reference"`
}

// CreditBonusRequest 是固定数额的奖励积分入账请求
type CreditBonusRequest struct {
	TenantID        string `json:"tenant_id"`
	MemberID        string `json:"member_id"`
	Points          int64  `json:"points"`
	TransactionType string `json:"transaction_type"`
	Reference       string `json:"reference"`
}

// CreditResponse 返回实际入账的积分和新余额
type CreditResponse struct {
	PointsCredited int64 `json:"points_credited"`
	NewBalance     int64 `json:"new_balance"`
}

// RecordPaidOrderRequest 记录一笔已支付订单
type RecordPaidOrderRequest struct {
	TenantID    string  `json:"tenant_id"`
	MemberID    string  `json:"member_id"`
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount"`
}

// RecordPaidOrderResponse 返回该订单在会员历史中的序号
type RecordPaidOrderResponse struct {
	Ordinal      int64 `json:"ordinal"`
	IsFirstOrder bool  `json:"is_first_order"`
	Duplicate    bool  `json:"duplicate"`
}

// RedeemCheckRequest 是兑换预检请求：外部结账扩展在下单前调用
type RedeemCheckRequest struct {
	CustomerEmail  string `json:"customer_email"`
	ShopDomain     string `json:"shop_domain"`
	PointsToRedeem int64  `json:"points_to_redeem"`
}

// RedeemCheckResponse 是兑换预检结论
type RedeemCheckResponse struct {
	Valid          bool    `json:"valid"`
	Reason         string  `json:"reason,omitempty"`
	CurrentBalance int64   `json:"current_balance"`
	DiscountValue  float64 `json:"discount_value,omitempty"`
	RemainingAfter int64   `json:"remaining_after,omitempty"`
}

// MemberStatusResponse 是会员忠诚度状态快照
type MemberStatusResponse struct {
	Found          bool   `json:"found"`
	MemberID       string `json:"member_id"`
	Balance        int64  `json:"balance"`
	PaidOrderCount int64  `json:"paid_order_count"`
	Tier           string `json:"tier"`
}

// TransactionView 是流水的对外视图
type TransactionView struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Points       int64  `json:"points"`
	BalanceAfter int64  `json:"balance_after"`
	Reference    string `json:"reference,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}
