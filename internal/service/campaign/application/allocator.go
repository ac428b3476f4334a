// internal/service/campaign/application/allocator.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/metrics"
	"lumen/internal/service/campaign/domain"
	"lumen/internal/service/campaign/domain/port"
)

// Allocator 把命中的规则落成具体的副作用：发券、记积分、开通会籍。
// 护栏预占与发放插入在 GuardrailTracker.Reserve 的一个事务里完成：
// 幂等键 (order_id, rule_id) 冲突时拿回当初的发放记录且计数器不动，
// 重复的 webhook 投递和回滚后的重试都不可能重复入账或重复扣名额。
type Allocator struct {
	allocRepo  domain.AllocationRepository
	guardrails domain.GuardrailTracker
	points     port.PointsService
	notifier   port.AllocationNotifier
	tracer     trace.Tracer
}

// NewAllocator 创建发放器
func NewAllocator(allocRepo domain.AllocationRepository, guardrails domain.GuardrailTracker, points port.PointsService, notifier port.AllocationNotifier, tracer trace.Tracer) *Allocator {
	return &Allocator{allocRepo: allocRepo, guardrails: guardrails, points: points, notifier: notifier, tracer: tracer}
}

// Allocate 为 (订单, 规则, 会员) 执行一次发放。
// 护栏拒绝通过 Rejection 返回，是业务结果而不是错误。
// delayed 时机的规则只落一条 PENDING 记录，真正的副作用等发货事件触发。
func (a *Allocator) Allocate(ctx context.Context, rule *domain.CampaignRule, order *domain.OrderFact, customer *domain.CustomerFact) (*domain.AllocationResult, error) {
	ctx, span := a.tracer.Start(ctx, "allocator.Allocate")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.Int64("rule.id", rule.ID),
		attribute.String("reward.type", string(rule.Reward.Type)),
	)

	now := time.Now()
	alloc := &domain.Allocation{
		ID:         uuid.New().String(),
		TenantID:   rule.TenantID,
		OrderID:    order.OrderID,
		RuleID:     rule.ID,
		MemberID:   customer.MemberID,
		RewardType: rule.Reward.Type,
		Status:     domain.AllocationPending,
		Cost:       rule.Reward.EstimatedCost,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rule.Reward.Type == domain.RewardVoucher {
		alloc.VoucherCode = voucherCode(rule)
	}
	if rule.Reward.Timing == domain.TimingInstant {
		alloc.Status = domain.AllocationIssued
	}

	decision, existing, err := a.guardrails.Reserve(ctx, rule, alloc)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("guardrail reservation failed: %w", err)
	}
	if !decision.Allowed {
		span.AddEvent("Guardrail rejected the allocation")
		return &domain.AllocationResult{Rejection: &decision}, nil
	}
	if existing != nil {
		// 幂等命中：返回当初的结果，不触发任何副作用
		span.AddEvent("Allocation deduplicated by (order_id, rule_id) key")
		logger.Ctx(ctx).Info().
			Str("order_id", order.OrderID).
			Int64("rule_id", rule.ID).
			Msg("Duplicate allocation attempt resolved to the original allocation")
		return &domain.AllocationResult{Allocation: existing, Deduplicated: true}, nil
	}

	result := &domain.AllocationResult{Allocation: alloc}
	if rule.Reward.Timing == domain.TimingInstant {
		if err := a.applyEffects(ctx, rule, order, alloc, result); err != nil {
			return nil, err
		}
	}

	metrics.Allocations.WithLabelValues(string(rule.Reward.Type), string(rule.Reward.Timing)).Inc()
	return result, nil
}

// ExistingAllocation 查询 (订单, 规则) 的既有发放记录；不存在时返回 nil
func (a *Allocator) ExistingAllocation(ctx context.Context, orderID string, ruleID int64) (*domain.Allocation, error) {
	alloc, err := a.allocRepo.FindByOrderAndRule(ctx, orderID, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrAllocationNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return alloc, nil
}

// FinalizePending 在发货事件到达时兑现该订单上所有 delayed 发放
func (a *Allocator) FinalizePending(ctx context.Context, order *domain.OrderFact, rules map[int64]*domain.CampaignRule) ([]*domain.AllocationResult, error) {
	ctx, span := a.tracer.Start(ctx, "allocator.FinalizePending")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	pendings, err := a.allocRepo.FindPendingByOrder(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}

	var results []*domain.AllocationResult
	for _, alloc := range pendings {
		rule, ok := rules[alloc.RuleID]
		if !ok {
			// 规则在等待期间被删除：发放记录保留在 PENDING，留给人工处理
			logger.Ctx(ctx).Warn().
				Str("allocation_id", alloc.ID).
				Int64("rule_id", alloc.RuleID).
				Msg("Pending allocation references a rule that no longer exists")
			continue
		}
		result := &domain.AllocationResult{Allocation: alloc}
		if err := a.applyEffects(ctx, rule, order, alloc, result); err != nil {
			return results, err
		}
		if err := a.allocRepo.MarkIssued(ctx, alloc.ID); err != nil {
			return results, err
		}
		alloc.Status = domain.AllocationIssued
		metrics.Allocations.WithLabelValues(string(rule.Reward.Type), string(rule.Reward.Timing)).Inc()
		results = append(results, result)
	}
	return results, nil
}

// applyEffects 执行发放的实际副作用并对外广播
func (a *Allocator) applyEffects(ctx context.Context, rule *domain.CampaignRule, order *domain.OrderFact, alloc *domain.Allocation, result *domain.AllocationResult) error {
	if rule.Reward.Type == domain.RewardPoints {
		resp, err := a.points.CreditPoints(ctx, &port.CreditPointsRequest{
			TenantID:        rule.TenantID,
			MemberID:        alloc.MemberID,
			OrderID:         order.OrderID,
			OrderAmount:     order.TotalPrice,
			EarnRate:        rule.Reward.PointsEarnRate,
			EarnDivisor:     rule.Reward.PointsEarnDivisor,
			TransactionType: "earned",
			Reference:       alloc.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to credit points for allocation %s: %w", alloc.ID, err)
		}
		alloc.PointsAmount = resp.PointsCredited
		result.NewBalance = resp.NewBalance
	}

	event := &port.AllocationEvent{
		AllocationID: alloc.ID,
		TenantID:     alloc.TenantID,
		OrderID:      alloc.OrderID,
		RuleID:       alloc.RuleID,
		MemberID:     alloc.MemberID,
		RewardType:   string(alloc.RewardType),
		VoucherCode:  alloc.VoucherCode,
		PointsAmount: alloc.PointsAmount,
		Cost:         alloc.Cost,
	}
	if err := a.notifier.PublishAllocated(ctx, event); err != nil {
		// 广播失败不回滚发放：下游通知是尽力而为的
		logger.Ctx(ctx).Error().Err(err).
			Str("allocation_id", alloc.ID).
			Msg("Failed to publish allocation event")
	}
	return nil
}

// voucherCode 生成券码：配置了通用码则共享，否则每次发放唯一
func voucherCode(rule *domain.CampaignRule) string {
	if rule.Reward.GenericCode != "" {
		return rule.Reward.GenericCode
	}
	return uuid.New().String()
}
