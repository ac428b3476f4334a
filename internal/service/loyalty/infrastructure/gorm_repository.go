// internal/service/loyalty/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lumen/internal/service/loyalty/domain"
)

// GormLedgerRepository 是积分账本的 GORM 实现。
// 所有余额变更都在事务内、持有会员状态行锁的前提下进行：
// balance_after 在锁下计算，状态行余额与最新流水永远一致。
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository 创建账本仓储
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Credit 入账一笔积分
func (r *GormLedgerRepository) Credit(ctx context.Context, cmd *domain.CreditCommand) (*domain.PointsTransaction, bool, error) {
	var result *domain.PointsTransaction
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, err := lockOrCreateStatus(tx, cmd.TenantID, cmd.MemberID, cmd.Email, cmd.Phone)
		if err != nil {
			return err
		}

		// 幂等检查必须在锁内做，并发的重复请求才会串行看到第一条
		if cmd.Reference != "" {
			var existing PointsTransactionModel
			err := tx.Where("member_id = ? AND type = ? AND reference = ?",
				cmd.MemberID, string(cmd.Type), cmd.Reference).
				First(&existing).Error
			if err == nil {
				result = toTransactionDomain(&existing)
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		newBalance := status.Balance + cmd.Points
		entry := &PointsTransactionModel{
			TenantID:     cmd.TenantID,
			MemberID:     cmd.MemberID,
			Type:         string(cmd.Type),
			Points:       cmd.Points,
			BalanceAfter: newBalance,
			Reference:    cmd.Reference,
			OrderID:      cmd.OrderID,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := tx.Model(&MemberStatusModel{}).
			Where("id = ?", status.ID).
			Update("balance", newBalance).Error; err != nil {
			return err
		}

		result = toTransactionDomain(entry)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "credit transaction failed")
	}
	return result, created, nil
}

// RecordPaidOrder 幂等地记录已支付订单
func (r *GormLedgerRepository) RecordPaidOrder(ctx context.Context, cmd *domain.PaidOrderCommand) (*domain.PaidOrderRecord, error) {
	record := &domain.PaidOrderRecord{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, err := lockOrCreateStatus(tx, cmd.TenantID, cmd.MemberID, cmd.Email, cmd.Phone)
		if err != nil {
			return err
		}

		paidOrder := &PaidOrderModel{
			TenantID:    cmd.TenantID,
			OrderID:     cmd.OrderID,
			MemberID:    cmd.MemberID,
			OrderAmount: cmd.OrderAmount,
			Ordinal:     status.PaidOrderCount + 1,
			CreatedAt:   time.Now(),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(paidOrder)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 重复投递：读回当初的序号
			var existing PaidOrderModel
			if err := tx.Where("tenant_id = ? AND order_id = ?", cmd.TenantID, cmd.OrderID).
				First(&existing).Error; err != nil {
				return err
			}
			record.Ordinal = existing.Ordinal
			record.Duplicate = true
			return nil
		}

		newSpend := status.LifetimeSpend + cmd.OrderAmount
		updates := map[string]interface{}{
			"paid_order_count": status.PaidOrderCount + 1,
			"lifetime_spend":   newSpend,
		}
		// 等级随累计消费额单调上调
		if newTier := domain.TierForSpend(newSpend); newTier.Multiplier() > domain.Tier(status.Tier).Multiplier() {
			updates["tier"] = string(newTier)
		}
		if err := tx.Model(&MemberStatusModel{}).
			Where("id = ?", status.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		record.Ordinal = status.PaidOrderCount + 1
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "record paid order failed")
	}
	return record, nil
}

// FindStatus 按会员号查状态
func (r *GormLedgerRepository) FindStatus(ctx context.Context, tenantID, memberID string) (*domain.MemberLoyaltyStatus, error) {
	var m MemberStatusModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, errors.Wrap(err, "failed to find member status")
	}
	return toStatusDomain(&m), nil
}

// FindStatusByEmail 按邮箱查状态
func (r *GormLedgerRepository) FindStatusByEmail(ctx context.Context, tenantID, email string) (*domain.MemberLoyaltyStatus, error) {
	var m MemberStatusModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, errors.Wrap(err, "failed to find member status by email")
	}
	return toStatusDomain(&m), nil
}

// ListTransactions 返回会员最近的流水
func (r *GormLedgerRepository) ListTransactions(ctx context.Context, tenantID, memberID string, limit int) ([]*domain.PointsTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []*PointsTransactionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
		Order("id DESC").Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	txs := make([]*domain.PointsTransaction, 0, len(models))
	for _, m := range models {
		txs = append(txs, toTransactionDomain(m))
	}
	return txs, nil
}

// lockOrCreateStatus 以 FOR UPDATE 锁住会员状态行，不存在时先创建。
// 并发首写由 (tenant_id, member_id) 唯一约束收敛，冲突后重新加锁读取。
func lockOrCreateStatus(tx *gorm.DB, tenantID, memberID, email, phone string) (*MemberStatusModel, error) {
	var status MemberStatusModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
		First(&status).Error
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	status = MemberStatusModel{
		TenantID:  tenantID,
		MemberID:  memberID,
		Email:     email,
		Phone:     phone,
		Tier:      string(domain.TierBronze),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&status).Error; err != nil {
		return nil, err
	}
	// 无论是自己插入成功还是并发赢家已写入，都重新加锁读回
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
		First(&status).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

func toStatusDomain(m *MemberStatusModel) *domain.MemberLoyaltyStatus {
	return &domain.MemberLoyaltyStatus{
		ID:             m.ID,
		TenantID:       m.TenantID,
		MemberID:       m.MemberID,
		Email:          m.Email,
		Phone:          m.Phone,
		Balance:        m.Balance,
		PaidOrderCount: m.PaidOrderCount,
		LifetimeSpend:  m.LifetimeSpend,
		Tier:           domain.Tier(m.Tier),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toTransactionDomain(m *PointsTransactionModel) *domain.PointsTransaction {
	return &domain.PointsTransaction{
		ID:           m.ID,
		TenantID:     m.TenantID,
		MemberID:     m.MemberID,
		Type:         domain.TransactionType(m.Type),
		Points:       m.Points,
		BalanceAfter: m.BalanceAfter,
		Reference:    m.Reference,
		OrderID:      m.OrderID,
		CreatedAt:    m.CreatedAt,
	}
}

// GormProgramRepository 读取租户计划配置
type GormProgramRepository struct {
	db *gorm.DB
}

// NewGormProgramRepository 创建计划仓储
func NewGormProgramRepository(db *gorm.DB) *GormProgramRepository {
	return &GormProgramRepository{db: db}
}

// GetProgram 返回租户配置，未配置时返回默认值
func (r *GormProgramRepository) GetProgram(ctx context.Context, tenantID string) (*domain.Program, error) {
	var m ProgramModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DefaultProgram(tenantID), nil
		}
		return nil, errors.Wrap(err, "failed to load loyalty program")
	}
	return &domain.Program{
		TenantID:          m.TenantID,
		RedemptionEnabled: m.RedemptionEnabled,
		RedeemRate:        m.RedeemRate,
	}, nil
}
