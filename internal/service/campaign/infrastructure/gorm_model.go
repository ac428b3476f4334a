// internal/service/campaign/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// CampaignRuleModel 对应数据库中的 campaign_rule 表。
// 四个条件组以 JSON 文本存储，读出时反序列化为强类型的条件节点。
type CampaignRuleModel struct {
	gorm.Model
	TenantID string `gorm:"size:191;index:idx_rule_tenant_active"`
	Name     string `gorm:"size:255"`

	TriggerConditions     string `gorm:"type:json"`
	EligibilityConditions string `gorm:"type:json"`
	LocationConditions    string `gorm:"type:json"`
	AttributionConditions string `gorm:"type:json"`

	ExcludeRefunded  bool
	ExcludeCancelled bool
	ExcludeTest      bool

	RewardType        string `gorm:"size:32"`
	RewardTiming      string `gorm:"size:16"`
	ClaimMethod       string `gorm:"size:16"`
	PointsEarnRate    int64
	PointsEarnDivisor float64
	GenericCode       string  `gorm:"size:64"`
	VoucherValue      float64 `gorm:"type:decimal(10,2)"`
	EstimatedCost     float64 `gorm:"type:decimal(10,2)"`

	MaxRewardsPerCustomer *int64
	MaxEnrollments        *int64
	BudgetCap             *float64 `gorm:"type:decimal(12,2)"`

	Priority  int
	IsActive  bool `gorm:"index:idx_rule_tenant_active"`
	StartDate *time.Time
	EndDate   *time.Time

	// 运行期计数器：只允许通过护栏追踪器的条件更新递增
	CurrentEnrollments int64
	BudgetSpent        float64 `gorm:"type:decimal(12,2)"`
}

// TableName 指定 GORM 应该使用的表名
func (CampaignRuleModel) TableName() string {
	return "campaign_rule"
}

// AllocationModel 对应 reward_allocation 表。
// (order_id, rule_id) 上的唯一索引是发放幂等性的最终保证。
type AllocationModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	TenantID  string `gorm:"size:191;index"`
	OrderID   string `gorm:"size:191;uniqueIndex:idx_alloc_order_rule"`
	RuleID    int64  `gorm:"uniqueIndex:idx_alloc_order_rule;index:idx_alloc_rule_member"`
	MemberID  string `gorm:"size:191;index:idx_alloc_rule_member"`
	CreatedAt time.Time
	UpdatedAt time.Time

	RewardType   string `gorm:"size:32"`
	Status       string `gorm:"size:16"`
	VoucherCode  string `gorm:"size:64"`
	PointsAmount int64
	Cost         float64 `gorm:"type:decimal(10,2)"`
}

// TableName 指定 GORM 应该使用的表名
func (AllocationModel) TableName() string {
	return "reward_allocation"
}

// TriggerLogModel 对应 campaign_trigger_log 表（只追加的审计轨迹）
type TriggerLogModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	TenantID  string `gorm:"size:191;index:idx_log_tenant_order"`
	OrderID   string `gorm:"size:191;index:idx_log_tenant_order"`
	RuleID    int64  `gorm:"index"`
	RuleName  string `gorm:"size:255"`
	MemberID  string `gorm:"size:191"`
	Result    string `gorm:"size:32;index"`
	Reason    string `gorm:"size:1024"`
	Allocated bool
	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (TriggerLogModel) TableName() string {
	return "campaign_trigger_log"
}

// TenantScopeModel 对应 tenant_scope 表：租户已授权的数据访问权限
type TenantScopeModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	TenantID string `gorm:"size:191;uniqueIndex:idx_tenant_scope"`
	Scope    string `gorm:"size:128;uniqueIndex:idx_tenant_scope"`
}

// TableName 指定 GORM 应该使用的表名
func (TenantScopeModel) TableName() string {
	return "tenant_scope"
}
