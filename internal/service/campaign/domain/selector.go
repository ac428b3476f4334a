// internal/service/campaign/domain/selector.go
package domain

import (
	"sort"
	"time"
)

// RuleCandidate 是选择器输出的一条候选：命中的规则加上评估详情
type RuleCandidate struct {
	Rule       *CampaignRule
	Evaluation RuleEvaluation
}

// SelectionResult 把一轮选择的完整结论交给上层：
// Matches 是按优先级排好序的命中规则，Rejected 是未命中规则及其原因，
// 供审计日志逐条落盘。
type SelectionResult struct {
	Matches  []RuleCandidate
	Rejected []RejectedRule
}

// RejectedRule 记录一条未入选规则及原因
type RejectedRule struct {
	Rule   *CampaignRule
	Result TriggerResult
	Reason string
}

// Selector 按优先级从租户的活动规则集中挑出命中的规则。
// 排序规则：priority 降序，平局时创建时间早者优先，再平则按 ID 升序，保证确定性。
type Selector struct {
	evaluator *Evaluator
}

// NewSelector 创建一个规则选择器
func NewSelector(evaluator *Evaluator) *Selector {
	return &Selector{evaluator: evaluator}
}

// Select 过滤并排序候选规则。
// grantedScopes 是租户已授权的数据访问权限集合；
// 规则包含未授权 scope 的条件时整条规则不可评估（failed），而不是跳过该条件。
func (s *Selector) Select(rules []*CampaignRule, order *OrderFact, customer *CustomerFact, grantedScopes map[string]bool, now time.Time) SelectionResult {
	var result SelectionResult

	for _, rule := range rules {
		if !rule.EligibleAt(now) {
			result.Rejected = append(result.Rejected, RejectedRule{
				Rule: rule, Result: TriggerFailed, Reason: "rule is inactive or outside its date window",
			})
			continue
		}
		if reason := rule.Exclusions.ExclusionReason(order); reason != "" {
			result.Rejected = append(result.Rejected, RejectedRule{
				Rule: rule, Result: TriggerBelowThreshold, Reason: reason,
			})
			continue
		}
		if scope := rule.MissingScope(grantedScopes); scope != "" {
			// 配置错误：缺权限的规则永不匹配，但必须留下可诊断的痕迹
			result.Rejected = append(result.Rejected, RejectedRule{
				Rule: rule, Result: TriggerFailed, Reason: "required scope not granted: " + scope,
			})
			continue
		}

		eval := s.evaluator.EvaluateRule(rule, order, customer)
		if !eval.Matched {
			reason := "conditions not met in group: " + eval.FailedGroup
			if len(eval.Diagnostics) > 0 {
				reason += " (" + eval.Diagnostics[0] + ")"
			}
			result.Rejected = append(result.Rejected, RejectedRule{
				Rule: rule, Result: TriggerBelowThreshold, Reason: reason,
			})
			continue
		}
		result.Matches = append(result.Matches, RuleCandidate{Rule: rule, Evaluation: eval})
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		ri, rj := result.Matches[i].Rule, result.Matches[j].Rule
		if ri.Priority != rj.Priority {
			return ri.Priority > rj.Priority
		}
		if !ri.CreatedAt.Equal(rj.CreatedAt) {
			return ri.CreatedAt.Before(rj.CreatedAt)
		}
		return ri.ID < rj.ID
	})

	return result
}
