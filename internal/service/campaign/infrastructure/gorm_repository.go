// internal/service/campaign/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lumen/internal/pkg/logger"
	"lumen/internal/service/campaign/domain"
)

// GormRuleRepository 是规则配置的 GORM 读实现
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository 创建规则仓储
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// ListActiveRules 加载租户当前激活的全部规则。
// 条件组反序列化失败的规则跳过并告警，不能让一条坏规则拖垮整个租户的评估。
func (r *GormRuleRepository) ListActiveRules(ctx context.Context, tenantID string) ([]*domain.CampaignRule, error) {
	var models []*CampaignRuleModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active rules")
	}

	rules := make([]*domain.CampaignRule, 0, len(models))
	for _, m := range models {
		rule, err := toRuleDomain(m)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Uint("rule_id", m.ID).
				Str("tenant_id", tenantID).
				Msg("Skipping rule with malformed condition payload")
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// FindByID 按主键加载规则
func (r *GormRuleRepository) FindByID(ctx context.Context, ruleID int64) (*domain.CampaignRule, error) {
	var m CampaignRuleModel
	err := r.db.WithContext(ctx).First(&m, ruleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, errors.Wrap(err, "failed to find rule")
	}
	return toRuleDomain(&m)
}

// GormGuardrailTracker 用行锁实现护栏预占与发放落库的原子单元。
// 锁住规则行之后，三项检查、计数器递增和发放记录插入发生在同一个事务内：
// 并发订单串行通过，只容得下一个名额的护栏不会被挤进两个；
// 发放插入失败时整个事务回滚，重试投递不会把计数器消耗两次。
type GormGuardrailTracker struct {
	db *gorm.DB
}

// NewGormGuardrailTracker 创建护栏追踪器
func NewGormGuardrailTracker(db *gorm.DB) *GormGuardrailTracker {
	return &GormGuardrailTracker{db: db}
}

// Reserve 预占一个发放名额、扣减预算并插入发放记录。
// (order_id, rule_id) 唯一索引冲突时读回已存在的记录且不递增计数器。
// 返回的拒绝结论是业务结果；error 只表示基础设施故障。
func (t *GormGuardrailTracker) Reserve(ctx context.Context, rule *domain.CampaignRule, alloc *domain.Allocation) (domain.GuardrailDecision, *domain.Allocation, error) {
	decision := domain.GuardrailOK()
	var existing *domain.Allocation

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked CampaignRuleModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, rule.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRuleNotFound
			}
			return err
		}

		if locked.MaxEnrollments != nil && locked.CurrentEnrollments >= *locked.MaxEnrollments {
			decision = domain.GuardrailRejected(domain.TriggerMaxReached,
				fmt.Sprintf("campaign enrollment limit of %d reached", *locked.MaxEnrollments))
			return nil
		}

		if locked.BudgetCap != nil && locked.BudgetSpent+alloc.Cost > *locked.BudgetCap {
			decision = domain.GuardrailRejected(domain.TriggerMaxReached,
				fmt.Sprintf("campaign budget of %.2f would be exceeded", *locked.BudgetCap))
			return nil
		}

		if locked.MaxRewardsPerCustomer != nil && alloc.MemberID != "" {
			var count int64
			if err := tx.Model(&AllocationModel{}).
				Where("rule_id = ? AND member_id = ?", rule.ID, alloc.MemberID).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= *locked.MaxRewardsPerCustomer {
				decision = domain.GuardrailRejected(domain.TriggerAlreadyEnrolled,
					fmt.Sprintf("customer already received this reward %d time(s)", count))
				return nil
			}
		}

		m := toAllocationModel(alloc)
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(m)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 幂等命中：读回当初的发放，计数器保持不动
			var prior AllocationModel
			if err := tx.Where("order_id = ? AND rule_id = ?", alloc.OrderID, alloc.RuleID).
				First(&prior).Error; err != nil {
				return err
			}
			existing = toAllocationDomain(&prior)
			return nil
		}

		return tx.Model(&CampaignRuleModel{}).
			Where("id = ?", locked.ID).
			Updates(map[string]interface{}{
				"current_enrollments": gorm.Expr("current_enrollments + 1"),
				"budget_spent":        gorm.Expr("budget_spent + ?", alloc.Cost),
			}).Error
	})
	if err != nil {
		return domain.GuardrailDecision{}, nil, errors.Wrap(err, "guardrail reservation failed")
	}
	return decision, existing, nil
}

// GormAllocationRepository 是发放记录的 GORM 实现
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository 创建发放仓储
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByOrderAndRule 按幂等键查找发放记录
func (r *GormAllocationRepository) FindByOrderAndRule(ctx context.Context, orderID string, ruleID int64) (*domain.Allocation, error) {
	var m AllocationModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND rule_id = ?", orderID, ruleID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAllocationNotFound
		}
		return nil, errors.Wrap(err, "failed to find allocation")
	}
	return toAllocationDomain(&m), nil
}

// FindPendingByOrder 查找订单上等待兑现的 delayed 发放
func (r *GormAllocationRepository) FindPendingByOrder(ctx context.Context, orderID string) ([]*domain.Allocation, error) {
	var models []*AllocationModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, string(domain.AllocationPending)).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending allocations")
	}
	allocs := make([]*domain.Allocation, 0, len(models))
	for _, m := range models {
		allocs = append(allocs, toAllocationDomain(m))
	}
	return allocs, nil
}

// MarkIssued 把 PENDING 发放推进到 ISSUED
func (r *GormAllocationRepository) MarkIssued(ctx context.Context, allocationID string) error {
	result := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("id = ? AND status = ?", allocationID, string(domain.AllocationPending)).
		Update("status", string(domain.AllocationIssued))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark allocation issued")
	}
	if result.RowsAffected == 0 {
		return domain.ErrAllocationNotFound
	}
	return nil
}

// Claim 把 ISSUED 发放推进到 CLAIMED（click 领取方式）。
// 条件更新保证重复点击只有第一次生效。
func (r *GormAllocationRepository) Claim(ctx context.Context, allocationID string) (*domain.Allocation, error) {
	result := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("id = ? AND status = ?", allocationID, string(domain.AllocationIssued)).
		Update("status", string(domain.AllocationClaimed))
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to claim allocation")
	}

	var m AllocationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", allocationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAllocationNotFound
		}
		return nil, errors.Wrap(err, "failed to load allocation")
	}
	if result.RowsAffected == 0 {
		if m.Status == string(domain.AllocationClaimed) {
			return toAllocationDomain(&m), domain.ErrAlreadyClaimed
		}
		return toAllocationDomain(&m), domain.ErrNotClaimable
	}
	return toAllocationDomain(&m), nil
}

// GormTriggerLogRepository 是审计日志的 GORM 实现
type GormTriggerLogRepository struct {
	db *gorm.DB
}

// NewGormTriggerLogRepository 创建审计仓储
func NewGormTriggerLogRepository(db *gorm.DB) *GormTriggerLogRepository {
	return &GormTriggerLogRepository{db: db}
}

// Append 追加一行审计记录
func (r *GormTriggerLogRepository) Append(ctx context.Context, entry *domain.TriggerLog) error {
	m := toTriggerLogModel(entry)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "failed to append trigger log")
	}
	entry.ID = m.ID
	return nil
}

// List 按过滤条件查询审计记录，按时间倒序
func (r *GormTriggerLogRepository) List(ctx context.Context, filter domain.TriggerLogFilter) ([]*domain.TriggerLog, error) {
	query := r.db.WithContext(ctx).Model(&TriggerLogModel{}).
		Where("tenant_id = ?", filter.TenantID)
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.RuleID != 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", string(filter.Result))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var models []*TriggerLogModel
	if err := query.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list trigger logs")
	}
	logs := make([]*domain.TriggerLog, 0, len(models))
	for _, m := range models {
		logs = append(logs, toTriggerLogDomain(m))
	}
	return logs, nil
}

// GormTenantScopeRepository 读取租户已授权的数据访问权限
type GormTenantScopeRepository struct {
	db *gorm.DB
}

// NewGormTenantScopeRepository 创建权限仓储
func NewGormTenantScopeRepository(db *gorm.DB) *GormTenantScopeRepository {
	return &GormTenantScopeRepository{db: db}
}

// GrantedScopes 返回租户的权限集合
func (r *GormTenantScopeRepository) GrantedScopes(ctx context.Context, tenantID string) (map[string]bool, error) {
	var models []*TenantScopeModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tenant scopes")
	}
	scopes := make(map[string]bool, len(models))
	for _, m := range models {
		scopes[m.Scope] = true
	}
	return scopes, nil
}
