// internal/service/campaign/domain/port/points.go
package port

import "context"

// CreditPointsRequest 是积分发放请求。
// 积分数额的计算（含等级倍率和向下取整）发生在积分服务一侧，
// 这里只携带规则配置的计算参数。
type CreditPointsRequest struct {
	TenantID        string  `json:"tenant_id"`
	MemberID        string  `json:"member_id"`
	OrderID         string  `json:"order_id"`
	OrderAmount     float64 `json:"order_amount"`
	EarnRate        int64   `json:"earn_rate"`
	EarnDivisor     float64 `json:"earn_divisor"`
	TransactionType string  `json:"transaction_type"` // earned / bonus
	Reference       string  `json:"reference"`        // allocation id
}

// CreditPointsResponse 返回实际入账的积分和新余额
type CreditPointsResponse struct {
	PointsCredited int64 `json:"points_credited"`
	NewBalance     int64 `json:"new_balance"`
}

// RecordPaidOrderRequest 通知积分服务记录一笔已支付订单。
// 积分服务以 (member, order) 唯一键保证幂等，并事务性递增会员的订单计数。
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
	Ordinal      int64 `json:"ordinal"` // 1 起始
	IsFirstOrder bool  `json:"is_first_order"`
	Duplicate    bool  `json:"duplicate"` // 该订单之前已记录过
}

// PointsService 是积分服务的出站端口
type PointsService interface {
	CreditPoints(ctx context.Context, req *CreditPointsRequest) (*CreditPointsResponse, error)
	RecordPaidOrder(ctx context.Context, req *RecordPaidOrderRequest) (*RecordPaidOrderResponse, error)
}
