// internal/service/referral/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lumen/internal/service/referral/domain"
)

const mysqlDuplicateEntry = 1062

// GormReferralRepository 是推荐关系的 GORM 实现
type GormReferralRepository struct {
	db *gorm.DB
}

// NewGormReferralRepository 创建推荐仓储
func NewGormReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// Create 插入 pending 推荐；唯一约束冲突翻译为领域错误
func (r *GormReferralRepository) Create(ctx context.Context, referral *domain.MemberReferral) error {
	m := toReferralModel(referral)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return domain.ErrAlreadyReferred
		}
		return errors.Wrap(err, "failed to create referral")
	}
	referral.ID = m.ID
	return nil
}

// FindByReferredMember 返回被推荐人名下的推荐关系，不存在时返回 nil, nil
func (r *GormReferralRepository) FindByReferredMember(ctx context.Context, tenantID, memberID string) (*domain.MemberReferral, error) {
	var m MemberReferralModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND referred_member_id = ?", tenantID, memberID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find referral")
	}
	return toReferralDomain(&m), nil
}

// FindByReferredEmail 按被推荐人邮箱查找，不存在时返回 nil, nil
func (r *GormReferralRepository) FindByReferredEmail(ctx context.Context, tenantID, email string) (*domain.MemberReferral, error) {
	var m MemberReferralModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND referred_email = ?", tenantID, email).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find referral by email")
	}
	return toReferralDomain(&m), nil
}

// BindReferredMember 把会员 ID 回填到尚未匹配的记录上；已匹配的记录不被覆盖
func (r *GormReferralRepository) BindReferredMember(ctx context.Context, referralID int64, memberID string) error {
	result := r.db.WithContext(ctx).Model(&MemberReferralModel{}).
		Where("id = ? AND referred_member_id IS NULL", referralID).
		Update("referred_member_id", memberID)
	return errors.Wrap(result.Error, "failed to bind referred member")
}

// CompletePending 条件更新：只有仍处于 pending 的记录会被翻转。
// RowsAffected 为 0 即并发完成或已过期清扫，由调用方按幂等处理。
func (r *GormReferralRepository) CompletePending(ctx context.Context, referralID int64, orderID string, referrerPoints, refereePoints int64, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&MemberReferralModel{}).
		Where("id = ? AND status = ?", referralID, string(domain.ReferralPending)).
		Updates(map[string]interface{}{
			"status":          string(domain.ReferralCompleted),
			"order_id":        orderID,
			"referrer_points": referrerPoints,
			"referee_points":  refereePoints,
			"completed_at":    completedAt,
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to complete referral")
	}
	return result.RowsAffected > 0, nil
}

// MarkExpired 条件更新：只有 pending 记录会被标记为 expired
func (r *GormReferralRepository) MarkExpired(ctx context.Context, referralID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&MemberReferralModel{}).
		Where("id = ? AND status = ?", referralID, string(domain.ReferralPending)).
		Update("status", string(domain.ReferralExpired))
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to mark referral expired")
	}
	return result.RowsAffected > 0, nil
}

// ExpireDue 批量清扫过期的 pending 记录
func (r *GormReferralRepository) ExpireDue(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&MemberReferralModel{}).
		Where("status = ? AND expires_at < ?", string(domain.ReferralPending), cutoff).
		Update("status", string(domain.ReferralExpired))
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to expire due referrals")
	}
	return result.RowsAffected, nil
}

// GormShopRepository 读取店铺注册表
type GormShopRepository struct {
	db *gorm.DB
}

// NewGormShopRepository 创建店铺仓储
func NewGormShopRepository(db *gorm.DB) *GormShopRepository {
	return &GormShopRepository{db: db}
}

// Exists 判断店铺域名是否已接入
func (r *GormShopRepository) Exists(ctx context.Context, shopDomain string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ShopModel{}).
		Where("domain = ?", shopDomain).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to look up shop")
	}
	return count > 0, nil
}

// GormCodeRepository 是推荐码的 GORM 实现
type GormCodeRepository struct {
	db *gorm.DB
}

// NewGormCodeRepository 创建推荐码仓储
func NewGormCodeRepository(db *gorm.DB) *GormCodeRepository {
	return &GormCodeRepository{db: db}
}

// EnsureCode 返回会员的推荐码，不存在时生成。
// 并发生成靠 (tenant_id, member_id) 唯一约束收敛：冲突时读回已有的那条。
func (r *GormCodeRepository) EnsureCode(ctx context.Context, tenantID, memberID string) (*domain.ReferralCode, error) {
	var m ReferralCodeModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
		First(&m).Error
	if err == nil {
		return toCodeDomain(&m), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "failed to find referral code")
	}

	m = ReferralCodeModel{
		TenantID:  tenantID,
		MemberID:  memberID,
		Code:      domain.NewReferralCode(),
		CreatedAt: time.Now(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to create referral code")
	}
	if result.RowsAffected == 0 {
		// 并发创建赢家已写入，读回它
		if err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND member_id = ?", tenantID, memberID).
			First(&m).Error; err != nil {
			return nil, errors.Wrap(err, "failed to reload referral code")
		}
	}
	return toCodeDomain(&m), nil
}

// FindByCode 按码值查找
func (r *GormCodeRepository) FindByCode(ctx context.Context, tenantID, code string) (*domain.ReferralCode, error) {
	var m ReferralCodeModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCode
		}
		return nil, errors.Wrap(err, "failed to find referral code")
	}
	return toCodeDomain(&m), nil
}

// nullableStr 把空字符串映射成 NULL，空值不参与唯一索引
func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func toReferralModel(r *domain.MemberReferral) *MemberReferralModel {
	return &MemberReferralModel{
		ID:               r.ID,
		TenantID:         r.TenantID,
		ReferralCode:     r.ReferralCode,
		ReferrerMemberID: r.ReferrerMemberID,
		ReferredMemberID: nullableStr(r.ReferredMemberID),
		ReferredEmail:    nullableStr(r.ReferredEmail),
		ReferredPhone:    r.ReferredPhone,
		ReferredName:     r.ReferredName,
		Status:           string(r.Status),
		OrderID:          r.OrderID,
		ReferrerPoints:   r.ReferrerPoints,
		RefereePoints:    r.RefereePoints,
		CreatedAt:        r.CreatedAt,
		ExpiresAt:        r.ExpiresAt,
		CompletedAt:      r.CompletedAt,
	}
}

func toReferralDomain(m *MemberReferralModel) *domain.MemberReferral {
	return &domain.MemberReferral{
		ID:               m.ID,
		TenantID:         m.TenantID,
		ReferralCode:     m.ReferralCode,
		ReferrerMemberID: m.ReferrerMemberID,
		ReferredMemberID: strOrEmpty(m.ReferredMemberID),
		ReferredEmail:    strOrEmpty(m.ReferredEmail),
		ReferredPhone:    m.ReferredPhone,
		ReferredName:     m.ReferredName,
		Status:           domain.ReferralStatus(m.Status),
		OrderID:          m.OrderID,
		ReferrerPoints:   m.ReferrerPoints,
		RefereePoints:    m.RefereePoints,
		CreatedAt:        m.CreatedAt,
		ExpiresAt:        m.ExpiresAt,
		CompletedAt:      m.CompletedAt,
	}
}

func toCodeDomain(m *ReferralCodeModel) *domain.ReferralCode {
	return &domain.ReferralCode{
		ID:        m.ID,
		TenantID:  m.TenantID,
		MemberID:  m.MemberID,
		Code:      m.Code,
		CreatedAt: m.CreatedAt,
	}
}
