// internal/service/campaign/domain/rule.go
package domain

import "time"

// RewardType 标识规则触发后产生的副作用类型
type RewardType string

const (
	RewardVoucher    RewardType = "voucher"
	RewardPoints     RewardType = "points"
	RewardMembership RewardType = "membership"
)

// AllocationTiming 控制发放时机
type AllocationTiming string

const (
	TimingInstant AllocationTiming = "instant" // 下单即发放
	TimingDelayed AllocationTiming = "delayed" // 等到发货事件再发放
)

// ClaimMethod 控制领取方式
type ClaimMethod string

const (
	ClaimAuto  ClaimMethod = "auto"  // 发放即到账
	ClaimClick ClaimMethod = "click" // 用户点击领取后才到账
)

// RewardAction 描述规则命中后要做什么
type RewardAction struct {
	Type        RewardType       `json:"type"`
	Timing      AllocationTiming `json:"timing"`
	ClaimMethod ClaimMethod      `json:"claim_method"`

	// 积分类奖励的计算参数：base = floor(order_amount / divisor) * rate
	PointsEarnRate    int64   `json:"points_earn_rate,omitempty"`
	PointsEarnDivisor float64 `json:"points_earn_divisor,omitempty"`

	// 券类奖励：GenericCode 非空时所有发放共享同一个码，否则每次发放生成唯一码
	GenericCode  string  `json:"generic_code,omitempty"`
	VoucherValue float64 `json:"voucher_value,omitempty"`

	// EstimatedCost 是单次发放对预算的预估扣减
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

// Guardrails 是规则的护栏配置，nil 表示不设上限
type Guardrails struct {
	MaxRewardsPerCustomer *int64   `json:"max_rewards_per_customer,omitempty"`
	MaxEnrollments        *int64   `json:"max_enrollments,omitempty"`
	BudgetCap             *float64 `json:"budget_cap,omitempty"`
}

// ExclusionRules 是订单级排除开关
type ExclusionRules struct {
	ExcludeRefunded  bool `json:"exclude_refunded"`
	ExcludeCancelled bool `json:"exclude_cancelled"`
	ExcludeTest      bool `json:"exclude_test"`
}

// ExclusionReason 返回订单被排除的原因；空串表示不排除
func (e ExclusionRules) ExclusionReason(order *OrderFact) string {
	if e.ExcludeRefunded && order.IsRefunded() {
		return "order is refunded"
	}
	if e.ExcludeCancelled && order.IsCancelled() {
		return "order is cancelled"
	}
	if e.ExcludeTest && order.IsTest {
		return "order is a test order"
	}
	return ""
}

// CampaignRule 是租户配置的一条活动规则聚合。
// 对引擎而言是只读配置；CurrentEnrollments / BudgetSpent 是运行期计数器，
// 只通过护栏追踪器的条件更新路径递增，永不回退。
type CampaignRule struct {
	ID       int64
	TenantID string // shop domain
	Name     string

	// 四个独立的 AND 条件组，组与组之间也是 AND 关系；空组恒为真
	TriggerConditions     []ConditionNode
	EligibilityConditions []ConditionNode
	LocationConditions    []ConditionNode
	AttributionConditions []ConditionNode

	Exclusions ExclusionRules
	Reward     RewardAction
	Guardrails Guardrails

	Priority  int // 数值越大越先评估
	IsActive  bool
	StartDate *time.Time
	EndDate   *time.Time

	CurrentEnrollments int64
	BudgetSpent        float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConditionGroup 用于遍历四个条件组
type ConditionGroup struct {
	Name  string
	Nodes []ConditionNode
}

// Groups 按固定顺序返回四个条件组
func (r *CampaignRule) Groups() []ConditionGroup {
	return []ConditionGroup{
		{Name: "trigger", Nodes: r.TriggerConditions},
		{Name: "eligibility", Nodes: r.EligibilityConditions},
		{Name: "location", Nodes: r.LocationConditions},
		{Name: "attribution", Nodes: r.AttributionConditions},
	}
}

// EligibleAt 判断规则在 t 时刻是否处于生效窗口内（闭区间）
func (r *CampaignRule) EligibleAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.StartDate != nil && t.Before(*r.StartDate) {
		return false
	}
	if r.EndDate != nil && t.After(*r.EndDate) {
		return false
	}
	return true
}

// MissingScope 返回规则依赖、但租户未授予的第一个数据权限；
// 空串表示所有依赖的权限都可用。
func (r *CampaignRule) MissingScope(grantedScopes map[string]bool) string {
	for _, group := range r.Groups() {
		for _, node := range group.Nodes {
			if node.RequiredScope == "" {
				continue
			}
			if !grantedScopes[node.RequiredScope] {
				return node.RequiredScope
			}
		}
	}
	return ""
}

// Validate 校验规则配置（保存路径使用）
func (r *CampaignRule) Validate() error {
	for _, group := range r.Groups() {
		if err := ValidateConditions(group.Nodes); err != nil {
			return err
		}
	}
	return nil
}
