// internal/service/referral/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/metrics"
	"lumen/internal/service/referral/domain"
	"lumen/internal/service/referral/domain/port"
)

// Config 是推荐服务的行为参数
type Config struct {
	// ValidityDays 是 pending 推荐的有效期
	ValidityDays int
	// 完成时双方的固定奖励积分
	ReferrerPoints int64
	RefereePoints  int64
}

// ReferralService 编排推荐关系的生命周期：绑定 → 完成 / 过期。
// 完成路径由活动服务在已支付订单上调用，也通过 HTTP 暴露给人工测试。
type ReferralService struct {
	cfg Config

	referrals domain.ReferralRepository
	codes     domain.CodeRepository
	shops     domain.ShopRepository
	loyalty   port.LoyaltyService
	tracer    trace.Tracer
}

// NewReferralService 创建推荐服务
func NewReferralService(cfg Config, referrals domain.ReferralRepository, codes domain.CodeRepository, shops domain.ShopRepository, loyalty port.LoyaltyService, tracer trace.Tracer) *ReferralService {
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = 90
	}
	return &ReferralService{
		cfg:       cfg,
		referrals: referrals,
		codes:     codes,
		shops:     shops,
		loyalty:   loyalty,
		tracer:    tracer,
	}
}

// requireShop 校验店铺已接入；未接入的域名拿到 ErrShopNotFound
func (s *ReferralService) requireShop(ctx context.Context, tenantID string) error {
	known, err := s.shops.Exists(ctx, tenantID)
	if err != nil {
		return err
	}
	if !known {
		return domain.ErrShopNotFound
	}
	return nil
}

// GetCode 返回会员的专属推荐码，首次调用时生成
func (s *ReferralService) GetCode(ctx context.Context, tenantID, memberID string) (*CodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "referral.GetCode")
	defer span.End()

	if err := s.requireShop(ctx, tenantID); err != nil {
		return nil, err
	}
	code, err := s.codes.EnsureCode(ctx, tenantID, memberID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &CodeResponse{MemberID: memberID, Code: code.Code}, nil
}

// Apply 把被推荐人绑定到推荐码的主人名下，创建 pending 推荐。
// 自荐、重复绑定、无效码、未接入店铺都是领域错误，由接口层翻译成 HTTP 状态。
func (s *ReferralService) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "referral.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("referral.code", req.ReferralCode),
	)

	if err := s.requireShop(ctx, req.TenantID); err != nil {
		return nil, err
	}

	code, err := s.codes.FindByCode(ctx, req.TenantID, req.ReferralCode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 被推荐人此刻可能还不是会员：邮箱能解析到会员就立即绑定，
	// 解析到码主人自己则是自荐；解析不到的留空，首单时回填
	referredMemberID := ""
	if req.ReferredEmail != "" {
		status, err := s.loyalty.GetMemberStatusByEmail(ctx, req.TenantID, req.ReferredEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve referred member: %w", err)
		}
		if status.Found {
			if status.MemberID == code.MemberID {
				return nil, domain.ErrSelfReferral
			}
			referredMemberID = status.MemberID
		}
	}

	if req.ReferredEmail != "" {
		existing, err := s.referrals.FindByReferredEmail(ctx, req.TenantID, req.ReferredEmail)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrAlreadyReferred
		}
	}
	if referredMemberID != "" {
		existing, err := s.referrals.FindByReferredMember(ctx, req.TenantID, referredMemberID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrAlreadyReferred
		}
	}

	now := time.Now()
	referral := &domain.MemberReferral{
		TenantID:         req.TenantID,
		ReferralCode:     code.Code,
		ReferrerMemberID: code.MemberID,
		ReferredMemberID: referredMemberID,
		ReferredEmail:    req.ReferredEmail,
		ReferredPhone:    req.ReferredPhone,
		ReferredName:     req.ReferredName,
		Status:           domain.ReferralPending,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, s.cfg.ValidityDays),
	}
	if err := s.referrals.Create(ctx, referral); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.ReferralTransitions.WithLabelValues("applied").Inc()
	logger.Ctx(ctx).Info().
		Str("tenant_id", req.TenantID).
		Str("referrer", code.MemberID).
		Str("referee_email", req.ReferredEmail).
		Msg("Referral applied")
	return &ApplyResponse{
		ReferralID:       referral.ID,
		ReferrerMemberID: referral.ReferrerMemberID,
		ReferredMemberID: referredMemberID,
		Status:           string(referral.Status),
		ExpiresAt:        referral.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// CompleteForOrder 在被推荐人的已支付订单上尝试完成推荐。
// 所有 skip 分支都是终态业务结果；error 只表示基础设施故障，可重试。
func (s *ReferralService) CompleteForOrder(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "referral.CompleteForOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("member.id", req.MemberID),
		attribute.String("order.id", req.OrderID),
	)

	outcome, err := s.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if outcome.Skipped {
		span.SetAttributes(attribute.String("referral.skip_reason", outcome.Reason))
		return &CompleteResponse{Skipped: true, Reason: outcome.Reason}, nil
	}

	metrics.ReferralTransitions.WithLabelValues("completed").Inc()
	logger.Ctx(ctx).Info().
		Str("tenant_id", req.TenantID).
		Str("referrer", outcome.ReferrerMemberID).
		Str("referee", req.MemberID).
		Str("order_id", req.OrderID).
		Msg("Referral completed")
	return &CompleteResponse{
		Success:         true,
		ReferrerPoints:  outcome.ReferrerPoints,
		RefereePoints:   outcome.RefereePoints,
		ReferrerBalance: outcome.ReferrerBalance,
		RefereeBalance:  outcome.RefereeBalance,
	}, nil
}

// matchReferral 找到属于该会员的推荐关系。
// 绑定时被推荐人还不是会员的，按下单邮箱回填 member_id。
func (s *ReferralService) matchReferral(ctx context.Context, req *CompleteRequest) (*domain.MemberReferral, error) {
	referral, err := s.referrals.FindByReferredMember(ctx, req.TenantID, req.MemberID)
	if err != nil {
		return nil, err
	}
	if referral != nil || req.Email == "" {
		return referral, nil
	}

	byEmail, err := s.referrals.FindByReferredEmail(ctx, req.TenantID, req.Email)
	if err != nil {
		return nil, err
	}
	if byEmail == nil || byEmail.ReferredMemberID != "" {
		// 没有邮箱线索，或这条记录已经绑定到别的会员
		return nil, nil
	}
	if byEmail.ReferrerMemberID == req.MemberID {
		// 码主人自己用被推荐邮箱下单，不构成推荐
		return nil, nil
	}
	if err := s.referrals.BindReferredMember(ctx, byEmail.ID, req.MemberID); err != nil {
		return nil, err
	}
	byEmail.ReferredMemberID = req.MemberID
	logger.Ctx(ctx).Info().
		Int64("referral_id", byEmail.ID).
		Str("member_id", req.MemberID).
		Msg("Guest referral bound to member on first order")
	return byEmail, nil
}

func (s *ReferralService) complete(ctx context.Context, req *CompleteRequest) (*domain.CompletionOutcome, error) {
	referral, err := s.matchReferral(ctx, req)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipNoReferrerLinked}, nil
	}

	switch referral.Status {
	case domain.ReferralCompleted:
		// 幂等：重复的已支付事件拿到 no-op
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipAlreadyCompleted}, nil
	case domain.ReferralExpired:
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipReferralExpired}, nil
	}

	now := time.Now()
	if referral.IsExpiredAt(now) {
		// 惰性过期：读到即标记，清扫只是兜底
		if _, err := s.referrals.MarkExpired(ctx, referral.ID); err != nil {
			return nil, err
		}
		metrics.ReferralTransitions.WithLabelValues("expired").Inc()
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipReferralExpired}, nil
	}

	// "首单"以积分服务持久化的订单计数为准，与事件到达顺序无关。
	// 本单已先被记录，因此首单表现为计数恰好为 1。
	status, err := s.loyalty.GetMemberStatus(ctx, req.TenantID, req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member status: %w", err)
	}
	if !status.Found || status.PaidOrderCount != 1 {
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipNotFirstOrder}, nil
	}

	// 先入账、后翻转。两笔入账共用 referral-<id> 幂等键：
	// 翻转前任何一步失败，重试会命中幂等键拿到原流水，不会重复发分；
	// 反过来先翻转再入账，入账失败后重试会停在 already_completed，积分就丢了。
	outcome := &domain.CompletionOutcome{
		Success:          true,
		ReferrerMemberID: referral.ReferrerMemberID,
		ReferrerPoints:   s.cfg.ReferrerPoints,
		RefereePoints:    s.cfg.RefereePoints,
	}
	reference := fmt.Sprintf("referral-%d", referral.ID)

	referrerResp, err := s.loyalty.CreditBonus(ctx, &port.CreditBonusRequest{
		TenantID:        req.TenantID,
		MemberID:        referral.ReferrerMemberID,
		Points:          s.cfg.ReferrerPoints,
		TransactionType: "referral",
		Reference:       reference,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("referral_id", referral.ID).
			Str("member_id", referral.ReferrerMemberID).
			Msg("Failed to credit referrer, referral stays pending")
		return nil, err
	}
	outcome.ReferrerBalance = referrerResp.NewBalance

	refereeResp, err := s.loyalty.CreditBonus(ctx, &port.CreditBonusRequest{
		TenantID:        req.TenantID,
		MemberID:        req.MemberID,
		Points:          s.cfg.RefereePoints,
		TransactionType: "referral_complete",
		Reference:       reference,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("referral_id", referral.ID).
			Str("member_id", req.MemberID).
			Msg("Failed to credit referee, referral stays pending")
		return nil, err
	}
	outcome.RefereeBalance = refereeResp.NewBalance

	flipped, err := s.referrals.CompletePending(ctx, referral.ID, req.OrderID,
		s.cfg.ReferrerPoints, s.cfg.RefereePoints, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// 并发的另一次投递先完成了状态翻转
		return &domain.CompletionOutcome{Skipped: true, Reason: domain.SkipAlreadyCompleted}, nil
	}
	return outcome, nil
}

// Sweep 批量把过期的 pending 推荐标记为 expired。
// 权威判定是惰性的，这里只是把状态列补齐，方便报表查询。
func (s *ReferralService) Sweep(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "referral.Sweep")
	defer span.End()

	expired, err := s.referrals.ExpireDue(ctx, time.Now())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if expired > 0 {
		metrics.ReferralTransitions.WithLabelValues("expired").Add(float64(expired))
		logger.Ctx(ctx).Info().Int64("expired", expired).Msg("Referral expiry sweep finished")
	}
	return expired, nil
}
