// internal/service/campaign/domain/repository.go
package domain

import "context"

// RuleRepository 是规则配置的读端口（规则由商家侧系统维护，引擎只读）
type RuleRepository interface {
	ListActiveRules(ctx context.Context, tenantID string) ([]*CampaignRule, error)
	FindByID(ctx context.Context, ruleID int64) (*CampaignRule, error)
}

// GuardrailTracker 负责护栏预占与发放落库的原子单元：
// 三项检查（全局上限、单客上限、预算）、计数器递增和发放记录插入
// 必须在同一个事务里完成。幂等键 (order_id, rule_id) 冲突时返回已存在的
// 记录且不触碰计数器；事务回滚后的重试因此不可能重复递增。
type GuardrailTracker interface {
	Reserve(ctx context.Context, rule *CampaignRule, alloc *Allocation) (GuardrailDecision, *Allocation, error)
}

// AllocationRepository 是发放记录的读取与状态推进端口；
// 插入走 GuardrailTracker.Reserve，和护栏计数器同事务提交。
type AllocationRepository interface {
	FindByOrderAndRule(ctx context.Context, orderID string, ruleID int64) (*Allocation, error)
	FindPendingByOrder(ctx context.Context, orderID string) ([]*Allocation, error)
	MarkIssued(ctx context.Context, allocationID string) error
	Claim(ctx context.Context, allocationID string) (*Allocation, error)
}

// TriggerLogRepository 是审计日志端口
type TriggerLogRepository interface {
	Append(ctx context.Context, entry *TriggerLog) error
	List(ctx context.Context, filter TriggerLogFilter) ([]*TriggerLog, error)
}

// EventDeduper 按外部事件 ID 去重。
// Claim 返回 false 表示该事件已经被处理过（或正在处理）。
// 处理失败时调用 Release，让 at-least-once 的重试投递能再次进入。
type EventDeduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// TenantScopeRepository 提供租户已授权的数据访问权限集合
type TenantScopeRepository interface {
	GrantedScopes(ctx context.Context, tenantID string) (map[string]bool, error)
}
