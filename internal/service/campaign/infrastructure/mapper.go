// internal/service/campaign/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"
	"fmt"

	"lumen/internal/service/campaign/domain"
)

// toRuleDomain 把数据库模型转换为领域聚合
func toRuleDomain(m *CampaignRuleModel) (*domain.CampaignRule, error) {
	rule := &domain.CampaignRule{
		ID:       int64(m.ID),
		TenantID: m.TenantID,
		Name:     m.Name,
		Exclusions: domain.ExclusionRules{
			ExcludeRefunded:  m.ExcludeRefunded,
			ExcludeCancelled: m.ExcludeCancelled,
			ExcludeTest:      m.ExcludeTest,
		},
		Reward: domain.RewardAction{
			Type:              domain.RewardType(m.RewardType),
			Timing:            domain.AllocationTiming(m.RewardTiming),
			ClaimMethod:       domain.ClaimMethod(m.ClaimMethod),
			PointsEarnRate:    m.PointsEarnRate,
			PointsEarnDivisor: m.PointsEarnDivisor,
			GenericCode:       m.GenericCode,
			VoucherValue:      m.VoucherValue,
			EstimatedCost:     m.EstimatedCost,
		},
		Guardrails: domain.Guardrails{
			MaxRewardsPerCustomer: m.MaxRewardsPerCustomer,
			MaxEnrollments:        m.MaxEnrollments,
			BudgetCap:             m.BudgetCap,
		},
		Priority:           m.Priority,
		IsActive:           m.IsActive,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		CurrentEnrollments: m.CurrentEnrollments,
		BudgetSpent:        m.BudgetSpent,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}

	var err error
	if rule.TriggerConditions, err = parseConditions(m.TriggerConditions); err != nil {
		return nil, fmt.Errorf("rule %d trigger conditions: %w", m.ID, err)
	}
	if rule.EligibilityConditions, err = parseConditions(m.EligibilityConditions); err != nil {
		return nil, fmt.Errorf("rule %d eligibility conditions: %w", m.ID, err)
	}
	if rule.LocationConditions, err = parseConditions(m.LocationConditions); err != nil {
		return nil, fmt.Errorf("rule %d location conditions: %w", m.ID, err)
	}
	if rule.AttributionConditions, err = parseConditions(m.AttributionConditions); err != nil {
		return nil, fmt.Errorf("rule %d attribution conditions: %w", m.ID, err)
	}
	return rule, nil
}

func parseConditions(raw string) ([]domain.ConditionNode, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var nodes []domain.ConditionNode
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// toAllocationDomain 把数据库模型转换为领域对象
func toAllocationDomain(m *AllocationModel) *domain.Allocation {
	return &domain.Allocation{
		ID:           m.ID,
		TenantID:     m.TenantID,
		OrderID:      m.OrderID,
		RuleID:       m.RuleID,
		MemberID:     m.MemberID,
		RewardType:   domain.RewardType(m.RewardType),
		Status:       domain.AllocationStatus(m.Status),
		VoucherCode:  m.VoucherCode,
		PointsAmount: m.PointsAmount,
		Cost:         m.Cost,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// toAllocationModel 把领域对象转换为数据库模型
func toAllocationModel(a *domain.Allocation) *AllocationModel {
	return &AllocationModel{
		ID:           a.ID,
		TenantID:     a.TenantID,
		OrderID:      a.OrderID,
		RuleID:       a.RuleID,
		MemberID:     a.MemberID,
		RewardType:   string(a.RewardType),
		Status:       string(a.Status),
		VoucherCode:  a.VoucherCode,
		PointsAmount: a.PointsAmount,
		Cost:         a.Cost,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// toTriggerLogModel 把审计条目转换为数据库模型
func toTriggerLogModel(e *domain.TriggerLog) *TriggerLogModel {
	return &TriggerLogModel{
		TenantID:  e.TenantID,
		OrderID:   e.OrderID,
		RuleID:    e.RuleID,
		RuleName:  e.RuleName,
		MemberID:  e.MemberID,
		Result:    string(e.Result),
		Reason:    e.Reason,
		Allocated: e.Allocated,
		CreatedAt: e.CreatedAt,
	}
}

// toTriggerLogDomain 把数据库模型转换为审计条目
func toTriggerLogDomain(m *TriggerLogModel) *domain.TriggerLog {
	return &domain.TriggerLog{
		ID:        m.ID,
		TenantID:  m.TenantID,
		OrderID:   m.OrderID,
		RuleID:    m.RuleID,
		RuleName:  m.RuleName,
		MemberID:  m.MemberID,
		Result:    domain.TriggerResult(m.Result),
		Reason:    m.Reason,
		Allocated: m.Allocated,
		CreatedAt: m.CreatedAt,
	}
}
