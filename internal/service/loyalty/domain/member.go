// internal/service/loyalty/domain/member.go
package domain

import "time"

// Tier 是会员等级，由累计消费额决定，只升不降
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Multiplier 返回等级对应的积分倍率
func (t Tier) Multiplier() float64 {
	switch t {
	case TierSilver:
		return 1.2
	case TierGold:
		return 1.5
	case TierPlatinum:
		return 2.0
	default:
		return 1.0
	}
}

// TierForSpend 按累计消费额计算应处等级
func TierForSpend(lifetimeSpend float64) Tier {
	switch {
	case lifetimeSpend >= 20000:
		return TierPlatinum
	case lifetimeSpend >= 5000:
		return TierGold
	case lifetimeSpend >= 1000:
		return TierSilver
	default:
		return TierBronze
	}
}

// MemberLoyaltyStatus 是会员忠诚度状态聚合。
// Balance 是权威余额，与流水表的最新 balance_after 始终一致：
// 两者在同一个事务内、同一把行锁下更新。
type MemberLoyaltyStatus struct {
	ID       int64
	TenantID string
	MemberID string
	Email    string
	Phone    string

	Balance        int64
	PaidOrderCount int64
	LifetimeSpend  float64
	Tier           Tier

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Program 是租户的忠诚度计划配置
type Program struct {
	TenantID          string
	RedemptionEnabled bool
	// RedeemRate 表示每个货币单位需要的积分数，默认 100 分抵 1 元
	RedeemRate float64
}

// DefaultProgram 返回未显式配置时的计划默认值
func DefaultProgram(tenantID string) *Program {
	return &Program{TenantID: tenantID, RedemptionEnabled: true, RedeemRate: 100}
}
