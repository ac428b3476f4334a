// internal/service/campaign/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/metrics"
	"lumen/internal/service/campaign/domain"
	"lumen/internal/service/campaign/domain/port"
)

// TriggerLogSink 接收新写入的审计日志行（WebSocket 推送等旁路消费），
// 实现必须是非阻塞的。
type TriggerLogSink interface {
	Publish(entry *domain.TriggerLog)
}

// Config 是活动引擎的行为开关
type Config struct {
	// FireAllMatches 为 true 时所有命中的规则都发放；
	// 默认 false：只有最高优先级的命中规则发放，其余只记审计日志。
	FireAllMatches bool
	// ProcessingTimeout 是单个事件处理流程的独立超时
	ProcessingTimeout time.Duration
}

// CampaignService 编排订单事件的完整处理流程：
// 去重 → 条件评估 → 规则选择 → 护栏预占 → 发放，以及并行的推荐完成路径。
type CampaignService struct {
	cfg Config

	ruleRepo  domain.RuleRepository
	scopeRepo domain.TenantScopeRepository
	logRepo   domain.TriggerLogRepository
	deduper   domain.EventDeduper
	selector  *domain.Selector
	allocator *Allocator

	points   port.PointsService
	referral port.ReferralService

	logSink TriggerLogSink // 可为 nil
	tracer  trace.Tracer
}

// NewCampaignService 创建活动引擎服务
func NewCampaignService(
	cfg Config,
	ruleRepo domain.RuleRepository,
	scopeRepo domain.TenantScopeRepository,
	logRepo domain.TriggerLogRepository,
	deduper domain.EventDeduper,
	selector *domain.Selector,
	allocator *Allocator,
	points port.PointsService,
	referral port.ReferralService,
	logSink TriggerLogSink,
	tracer trace.Tracer,
) *CampaignService {
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 10 * time.Second
	}
	return &CampaignService{
		cfg: cfg, ruleRepo: ruleRepo, scopeRepo: scopeRepo,
		logRepo: logRepo, deduper: deduper, selector: selector, allocator: allocator,
		points: points, referral: referral, logSink: logSink, tracer: tracer,
	}
}

// HandleOrderEvent 是被动的业务处理入口，由驱动适配器（Kafka 消费者或 HTTP 回放接口）调用。
// 返回 error 表示瞬时失败，事件应当重试；业务性拒绝一律落审计日志后返回 nil。
func (s *CampaignService) HandleOrderEvent(ctx context.Context, event *OrderEvent) error {
	ctx, span := s.tracer.Start(ctx, "campaign.HandleOrderEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.EventID),
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
		attribute.String("tenant.id", event.ShopDomain),
	)

	processingCtx, cancel := context.WithTimeout(ctx, s.cfg.ProcessingTimeout)
	defer cancel()

	// 按外部事件 ID 去重：重复投递不是错误
	if event.EventID != "" {
		claimed, err := s.deduper.Claim(processingCtx, event.EventID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("event dedup claim failed: %w", err)
		}
		if !claimed {
			metrics.DuplicateEvents.Inc()
			span.AddEvent("Duplicate event skipped")
			logger.Ctx(ctx).Info().Str("event_id", event.EventID).Msg("Duplicate order event skipped")
			return nil
		}
	}

	if err := s.processEvent(processingCtx, event); err != nil {
		// 处理失败：释放去重占位，让上游重试能再次进入
		if event.EventID != "" {
			if releaseErr := s.deduper.Release(context.WithoutCancel(processingCtx), event.EventID); releaseErr != nil {
				logger.Ctx(ctx).Error().Err(releaseErr).
					Str("event_id", event.EventID).
					Msg("Failed to release dedup claim after processing failure")
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "order event processing failed")
		return err
	}
	return nil
}

func (s *CampaignService) processEvent(ctx context.Context, event *OrderEvent) error {
	switch event.EventType {
	case EventOrderCreated:
		return s.runTriggerPipeline(ctx, event)
	case EventOrderPaid:
		return s.handleOrderPaid(ctx, event)
	case EventOrderFulfilled:
		return s.handleFulfillment(ctx, event)
	default:
		logger.Ctx(ctx).Warn().Str("event_type", event.EventType).Msg("Unknown order event type ignored")
		return nil
	}
}

// runTriggerPipeline 执行条件评估 → 规则选择 → 护栏 → 发放
func (s *CampaignService) runTriggerPipeline(ctx context.Context, event *OrderEvent) error {
	ctx, span := s.tracer.Start(ctx, "campaign.TriggerPipeline")
	defer span.End()

	order, customer := event.ToFacts()

	rules, err := s.ruleRepo.ListActiveRules(ctx, event.ShopDomain)
	if err != nil {
		return fmt.Errorf("failed to load rules for tenant %s: %w", event.ShopDomain, err)
	}
	if len(rules) == 0 {
		return nil
	}

	scopes, err := s.scopeRepo.GrantedScopes(ctx, event.ShopDomain)
	if err != nil {
		return fmt.Errorf("failed to load granted scopes for tenant %s: %w", event.ShopDomain, err)
	}

	selection := s.selector.Select(rules, order, customer, scopes, time.Now())
	span.SetAttributes(attribute.Int("rules.matched", len(selection.Matches)))

	// 未命中的规则也逐条落审计：商家靠这个诊断"为什么没触发"
	for _, rejected := range selection.Rejected {
		s.appendLog(ctx, &domain.TriggerLog{
			TenantID: event.ShopDomain, OrderID: order.OrderID,
			RuleID: rejected.Rule.ID, RuleName: rejected.Rule.Name,
			MemberID: customer.MemberID,
			Result:   rejected.Result, Reason: rejected.Reason,
		})
	}

	if len(selection.Matches) == 0 {
		return nil
	}

	if !customer.HasMember() {
		for _, match := range selection.Matches {
			s.appendLog(ctx, &domain.TriggerLog{
				TenantID: event.ShopDomain, OrderID: order.OrderID,
				RuleID: match.Rule.ID, RuleName: match.Rule.Name,
				Result: domain.TriggerNoMember,
				Reason: "order has no resolvable member identity",
			})
		}
		return nil
	}

	for i, match := range selection.Matches {
		rule := match.Rule
		if !s.cfg.FireAllMatches && i > 0 {
			// 单发模式：低优先级的命中只记候选，不发放
			s.appendLog(ctx, &domain.TriggerLog{
				TenantID: event.ShopDomain, OrderID: order.OrderID,
				RuleID: rule.ID, RuleName: rule.Name, MemberID: customer.MemberID,
				Result: domain.TriggerSuccess,
				Reason: fmt.Sprintf("matched, but a higher-priority rule (%d) fired first", selection.Matches[0].Rule.ID),
			})
			continue
		}

		// 重复投递的订单不必再锁规则行：先用幂等键做一次廉价的读
		if existing, err := s.allocator.ExistingAllocation(ctx, order.OrderID, rule.ID); err != nil {
			return fmt.Errorf("allocation lookup failed for rule %d: %w", rule.ID, err)
		} else if existing != nil {
			s.appendLog(ctx, &domain.TriggerLog{
				TenantID: event.ShopDomain, OrderID: order.OrderID,
				RuleID: rule.ID, RuleName: rule.Name, MemberID: customer.MemberID,
				Result: domain.TriggerSuccess,
				Reason: "duplicate delivery resolved to the original allocation",
			})
			continue
		}

		result, err := s.allocator.Allocate(ctx, rule, order, customer)
		if err != nil {
			return fmt.Errorf("allocation failed for rule %d: %w", rule.ID, err)
		}
		if result.Rejection != nil {
			s.appendLog(ctx, &domain.TriggerLog{
				TenantID: event.ShopDomain, OrderID: order.OrderID,
				RuleID: rule.ID, RuleName: rule.Name, MemberID: customer.MemberID,
				Result: result.Rejection.Result, Reason: result.Rejection.Reason,
			})
			continue
		}
		reason := "all condition groups satisfied"
		if result.Deduplicated {
			reason = "duplicate delivery resolved to the original allocation"
		}
		s.appendLog(ctx, &domain.TriggerLog{
			TenantID: event.ShopDomain, OrderID: order.OrderID,
			RuleID: rule.ID, RuleName: rule.Name, MemberID: customer.MemberID,
			Result: domain.TriggerSuccess, Reason: reason,
			Allocated: !result.Deduplicated,
		})
		logger.Ctx(ctx).Info().
			Str("order_id", order.OrderID).
			Int64("rule_id", rule.ID).
			Str("allocation_id", result.Allocation.ID).
			Bool("deduplicated", result.Deduplicated).
			Msg("Campaign rule fired")
	}
	return nil
}

// handleOrderPaid 处理已支付事件：记录会员订单序号并驱动推荐完成
func (s *CampaignService) handleOrderPaid(ctx context.Context, event *OrderEvent) error {
	ctx, span := s.tracer.Start(ctx, "campaign.HandleOrderPaid")
	defer span.End()

	_, customer := event.ToFacts()
	if !customer.HasMember() {
		span.AddEvent("Paid order has no member identity; nothing to do")
		return nil
	}

	// 先把这笔已支付订单写入会员的持久化订单计数。
	// "首单"判定必须基于这里的序号，而不是 webhook 的到达顺序。
	recorded, err := s.points.RecordPaidOrder(ctx, &port.RecordPaidOrderRequest{
		TenantID:    event.ShopDomain,
		MemberID:    customer.MemberID,
		Email:       customer.Email,
		Phone:       customer.Phone,
		OrderID:     event.OrderID,
		OrderAmount: event.TotalPrice,
	})
	if err != nil {
		return fmt.Errorf("failed to record paid order: %w", err)
	}
	span.SetAttributes(
		attribute.Int64("order.ordinal", recorded.Ordinal),
		attribute.Bool("order.is_first", recorded.IsFirstOrder),
	)

	resp, err := s.referral.CompleteForOrder(ctx, &port.CompleteReferralRequest{
		TenantID:    event.ShopDomain,
		MemberID:    customer.MemberID,
		Email:       customer.Email,
		OrderID:     event.OrderID,
		OrderAmount: event.TotalPrice,
	})
	if err != nil {
		return fmt.Errorf("referral completion call failed: %w", err)
	}
	if resp.Skipped {
		logger.Ctx(ctx).Info().
			Str("member_id", customer.MemberID).
			Str("reason", resp.Reason).
			Msg("Referral completion skipped")
	} else if resp.Success {
		logger.Ctx(ctx).Info().
			Str("member_id", customer.MemberID).
			Int64("referrer_points", resp.ReferrerPoints).
			Int64("referee_points", resp.RefereePoints).
			Msg("Referral completed on first paid order")
	}
	return nil
}

// handleFulfillment 兑现该订单上所有 delayed 发放
func (s *CampaignService) handleFulfillment(ctx context.Context, event *OrderEvent) error {
	ctx, span := s.tracer.Start(ctx, "campaign.HandleFulfillment")
	defer span.End()

	order, _ := event.ToFacts()
	rules, err := s.ruleRepo.ListActiveRules(ctx, event.ShopDomain)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	ruleIndex := make(map[int64]*domain.CampaignRule, len(rules))
	for _, r := range rules {
		ruleIndex[r.ID] = r
	}

	results, err := s.allocator.FinalizePending(ctx, order, ruleIndex)
	if err != nil {
		return fmt.Errorf("failed to finalize pending allocations: %w", err)
	}
	if len(results) > 0 {
		logger.Ctx(ctx).Info().
			Str("order_id", order.OrderID).
			Int("finalized", len(results)).
			Msg("Delayed allocations finalized on fulfillment")
	}
	return nil
}

// ClaimAllocation 处理 click 领取方式的领取动作（幂等：重复领取返回已领取错误）
func (s *CampaignService) ClaimAllocation(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error) {
	ctx, span := s.tracer.Start(ctx, "campaign.ClaimAllocation")
	defer span.End()

	alloc, err := s.allocator.allocRepo.Claim(ctx, req.AllocationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ClaimResponse{
		Success:     true,
		Status:      string(alloc.Status),
		VoucherCode: alloc.VoucherCode,
	}, nil
}

// ListTriggerLogs 暴露审计日志给观测工具（外部看板消费）
func (s *CampaignService) ListTriggerLogs(ctx context.Context, filter domain.TriggerLogFilter) ([]*domain.TriggerLog, error) {
	ctx, span := s.tracer.Start(ctx, "campaign.ListTriggerLogs")
	defer span.End()
	return s.logRepo.List(ctx, filter)
}

// appendLog 落审计日志并旁路广播。审计写失败只告警不中断主流程。
func (s *CampaignService) appendLog(ctx context.Context, entry *domain.TriggerLog) {
	entry.CreatedAt = time.Now()
	if err := s.logRepo.Append(ctx, entry); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", entry.OrderID).
			Int64("rule_id", entry.RuleID).
			Msg("Failed to append campaign trigger log")
	}
	metrics.TriggerOutcomes.WithLabelValues(string(entry.Result)).Inc()
	if s.logSink != nil {
		s.logSink.Publish(entry)
	}
}
