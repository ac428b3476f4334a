// internal/service/loyalty/application/service.go
package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/metrics"
	"lumen/internal/service/loyalty/domain"
	"lumen/internal/service/loyalty/domain/port"
)

// LoyaltyService 管理会员积分账本、订单计数和兑换预检
type LoyaltyService struct {
	ledger   domain.LedgerRepository
	programs domain.ProgramRepository
	cache    port.BalanceCache
	tracer   trace.Tracer
}

// NewLoyaltyService 创建积分服务
func NewLoyaltyService(ledger domain.LedgerRepository, programs domain.ProgramRepository, cache port.BalanceCache, tracer trace.Tracer) *LoyaltyService {
	return &LoyaltyService{ledger: ledger, programs: programs, cache: cache, tracer: tracer}
}

// CreditPoints 按规则参数计算下单积分并入账。
// 计算用会员当前等级的倍率，基数和最终值都向下取整。
func (s *LoyaltyService) CreditPoints(ctx context.Context, req *CreditPointsRequest) (*CreditResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.CreditPoints")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.id", req.MemberID),
		attribute.String("order.id", req.OrderID),
	)

	tier := domain.TierBronze
	status, err := s.ledger.FindStatus(ctx, req.TenantID, req.MemberID)
	if err != nil && !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, err
	}
	if status != nil {
		tier = status.Tier
	}

	points := domain.ComputeEarnedPoints(req.OrderAmount, req.EarnRate, req.EarnDivisor, tier.Multiplier())
	span.SetAttributes(attribute.Int64("points.computed", points))
	if points <= 0 {
		balance := int64(0)
		if status != nil {
			balance = status.Balance
		}
		return &CreditResponse{PointsCredited: 0, NewBalance: balance}, nil
	}

	txType := domain.TransactionType(req.TransactionType)
	if txType == "" {
		txType = domain.TxEarned
	}
	return s.credit(ctx, &domain.CreditCommand{
		TenantID:  req.TenantID,
		MemberID:  req.MemberID,
		Type:      txType,
		Points:    points,
		Reference: req.Reference,
		OrderID:   req.OrderID,
	})
}

// CreditBonus 入账固定数额的奖励积分（推荐奖励等），不应用等级倍率
func (s *LoyaltyService) CreditBonus(ctx context.Context, req *CreditBonusRequest) (*CreditResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.CreditBonus")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", req.MemberID))

	if req.Points <= 0 {
		return nil, domain.ErrInvalidPoints
	}
	txType := domain.TransactionType(req.TransactionType)
	if txType == "" {
		txType = domain.TxBonus
	}
	return s.credit(ctx, &domain.CreditCommand{
		TenantID:  req.TenantID,
		MemberID:  req.MemberID,
		Type:      txType,
		Points:    req.Points,
		Reference: req.Reference,
	})
}

func (s *LoyaltyService) credit(ctx context.Context, cmd *domain.CreditCommand) (*CreditResponse, error) {
	tx, created, err := s.ledger.Credit(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to credit points: %w", err)
	}
	if !created {
		// 幂等命中：同一 (member, type, reference) 的重复入账返回原流水
		logger.Ctx(ctx).Info().
			Str("member_id", cmd.MemberID).
			Str("reference", cmd.Reference).
			Msg("Duplicate credit request resolved to the original transaction")
		return &CreditResponse{PointsCredited: tx.Points, NewBalance: tx.BalanceAfter}, nil
	}

	s.cache.Invalidate(ctx, cmd.TenantID, cmd.MemberID)
	metrics.PointsCredited.WithLabelValues(string(cmd.Type)).Add(float64(tx.Points))
	logger.Ctx(ctx).Info().
		Str("member_id", cmd.MemberID).
		Str("type", string(cmd.Type)).
		Int64("points", tx.Points).
		Int64("balance_after", tx.BalanceAfter).
		Msg("Points credited")
	return &CreditResponse{PointsCredited: tx.Points, NewBalance: tx.BalanceAfter}, nil
}

// RecordPaidOrder 幂等地记录已支付订单，返回它在会员历史中的序号
func (s *LoyaltyService) RecordPaidOrder(ctx context.Context, req *RecordPaidOrderRequest) (*RecordPaidOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.RecordPaidOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.id", req.MemberID),
		attribute.String("order.id", req.OrderID),
	)

	record, err := s.ledger.RecordPaidOrder(ctx, &domain.PaidOrderCommand{
		TenantID:    req.TenantID,
		MemberID:    req.MemberID,
		Email:       req.Email,
		Phone:       req.Phone,
		OrderID:     req.OrderID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record paid order: %w", err)
	}
	if !record.Duplicate {
		logger.Ctx(ctx).Info().
			Str("member_id", req.MemberID).
			Str("order_id", req.OrderID).
			Int64("ordinal", record.Ordinal).
			Msg("Paid order recorded")
	}
	return &RecordPaidOrderResponse{
		Ordinal:      record.Ordinal,
		IsFirstOrder: record.Ordinal == 1,
		Duplicate:    record.Duplicate,
	}, nil
}

// RedeemCheck 兑换预检：校验会员余额是否足以抵扣请求的积分数。
// 只读不扣减；实际扣减发生在订单结算路径上。
func (s *LoyaltyService) RedeemCheck(ctx context.Context, req *RedeemCheckRequest) (*RedeemCheckResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.RedeemCheck")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", req.ShopDomain))

	program, err := s.programs.GetProgram(ctx, req.ShopDomain)
	if err != nil {
		return nil, err
	}
	if !program.RedemptionEnabled {
		return &RedeemCheckResponse{Valid: false, Reason: domain.RedeemDisabled}, nil
	}

	status, err := s.ledger.FindStatusByEmail(ctx, req.ShopDomain, req.CustomerEmail)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return &RedeemCheckResponse{Valid: false, Reason: domain.RedeemMemberNotFound}, nil
		}
		return nil, err
	}

	// 余额优先走缓存；未命中时用状态行的权威余额并回填
	balance, ok := s.cache.Get(ctx, req.ShopDomain, status.MemberID)
	if !ok {
		balance = status.Balance
		s.cache.Set(ctx, req.ShopDomain, status.MemberID, balance)
	}

	if req.PointsToRedeem <= 0 || balance < req.PointsToRedeem {
		return &RedeemCheckResponse{
			Valid:          false,
			Reason:         domain.RedeemInsufficientPoints,
			CurrentBalance: balance,
		}, nil
	}

	rate := program.RedeemRate
	if rate <= 0 {
		rate = 100
	}
	discount := math.Floor(float64(req.PointsToRedeem)/rate*100) / 100
	return &RedeemCheckResponse{
		Valid:          true,
		CurrentBalance: balance,
		DiscountValue:  discount,
		RemainingAfter: balance - req.PointsToRedeem,
	}, nil
}

// GetMemberStatus 返回会员状态快照；不存在的会员返回 found=false 而不是错误
func (s *LoyaltyService) GetMemberStatus(ctx context.Context, tenantID, memberID string) (*MemberStatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.GetMemberStatus")
	defer span.End()

	status, err := s.ledger.FindStatus(ctx, tenantID, memberID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return &MemberStatusResponse{Found: false, MemberID: memberID}, nil
		}
		return nil, err
	}
	return &MemberStatusResponse{
		Found:          true,
		MemberID:       status.MemberID,
		Balance:        status.Balance,
		PaidOrderCount: status.PaidOrderCount,
		Tier:           string(status.Tier),
	}, nil
}

// GetMemberStatusByEmail 按邮箱返回会员状态快照；
// 推荐服务用它把被推荐人的邮箱解析成会员。
func (s *LoyaltyService) GetMemberStatusByEmail(ctx context.Context, tenantID, email string) (*MemberStatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.GetMemberStatusByEmail")
	defer span.End()

	status, err := s.ledger.FindStatusByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return &MemberStatusResponse{Found: false}, nil
		}
		return nil, err
	}
	return &MemberStatusResponse{
		Found:          true,
		MemberID:       status.MemberID,
		Balance:        status.Balance,
		PaidOrderCount: status.PaidOrderCount,
		Tier:           string(status.Tier),
	}, nil
}

// ListTransactions 返回会员最近的积分流水
func (s *LoyaltyService) ListTransactions(ctx context.Context, tenantID, memberID string, limit int) ([]*TransactionView, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ListTransactions")
	defer span.End()

	txs, err := s.ledger.ListTransactions(ctx, tenantID, memberID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, &TransactionView{
			ID:           tx.ID,
			Type:         string(tx.Type),
			Points:       tx.Points,
			BalanceAfter: tx.BalanceAfter,
			Reference:    tx.Reference,
			OrderID:      tx.OrderID,
			CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
		})
	}
	return views, nil
}
