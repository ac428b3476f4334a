// internal/service/loyalty/domain/transaction.go
package domain

import (
	"math"
	"time"
)

// TransactionType 标识流水的业务来源
type TransactionType string

const (
	TxEarned           TransactionType = "earned"
	TxRedeemed         TransactionType = "redeemed"
	TxBonus            TransactionType = "bonus"
	TxAdjustment       TransactionType = "adjustment"
	TxExpired          TransactionType = "expired"
	TxReferral         TransactionType = "referral"
	TxReferralComplete TransactionType = "referral_complete"
)

// PointsTransaction 是只追加的积分流水行。
// BalanceAfter 在写入时、持有会员状态行锁的前提下计算；
// 权威余额永远取状态行（等价于最新流水的 BalanceAfter），绝不临时求和。
type PointsTransaction struct {
	ID       int64
	TenantID string
	MemberID string

	Type         TransactionType
	Points       int64 // 有符号：入账为正，扣减为负
	BalanceAfter int64

	// Reference 是业务幂等键：发放 ID、推荐 ID 等。
	// (member, type, reference) 唯一，重复入账请求拿回原流水。
	Reference string
	OrderID   string

	CreatedAt time.Time
}

// ComputeEarnedPoints 计算下单积分：
// base = floor(order_amount / divisor) * rate，final = floor(base * multiplier)。
// 两处都向下取整；divisor 非正时视为 1。
func ComputeEarnedPoints(orderAmount float64, rate int64, divisor, multiplier float64) int64 {
	if rate <= 0 || orderAmount <= 0 {
		return 0
	}
	if divisor <= 0 {
		divisor = 1
	}
	base := math.Floor(orderAmount/divisor) * float64(rate)
	return int64(math.Floor(base * multiplier))
}

// RedemptionCheck 是兑换预检的结论
type RedemptionCheck struct {
	Valid          bool
	Reason         string // insufficient_points / member_not_found / redemption_disabled
	CurrentBalance int64
	DiscountValue  float64
	RemainingAfter int64
}

// 兑换预检失败原因的规范取值
const (
	RedeemInsufficientPoints = "insufficient_points"
	RedeemMemberNotFound     = "member_not_found"
	RedeemDisabled           = "redemption_disabled"
)
