// internal/service/referral/infrastructure/gorm_model.go
package infrastructure

import "time"

// MemberReferralModel 对应 member_referral 表。
// (tenant_id, referred_member_id) 和 (tenant_id, referred_email) 都唯一：
// 一个会员（或一个邮箱）一生最多被推荐一次。
// referred_member_id 在被推荐人注册成会员前保持 NULL，匹配成功后回填。
type MemberReferralModel struct {
	ID               int64   `gorm:"primaryKey;autoIncrement"`
	TenantID         string  `gorm:"size:191;uniqueIndex:idx_referral_referred;uniqueIndex:idx_referral_referred_email"`
	ReferralCode     string  `gorm:"size:32;index"`
	ReferrerMemberID string  `gorm:"size:191;index"`
	ReferredMemberID *string `gorm:"size:191;uniqueIndex:idx_referral_referred"`
	ReferredEmail    *string `gorm:"size:191;uniqueIndex:idx_referral_referred_email"`
	ReferredPhone    string  `gorm:"size:32"`
	ReferredName     string  `gorm:"size:191"`

	Status string `gorm:"size:16;index:idx_referral_status_expiry"`

	OrderID        string `gorm:"size:191"`
	ReferrerPoints int64
	RefereePoints  int64

	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"index:idx_referral_status_expiry"`
	CompletedAt *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (MemberReferralModel) TableName() string {
	return "member_referral"
}

// ReferralCodeModel 对应 referral_code 表，一人一码
type ReferralCodeModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	TenantID  string `gorm:"size:191;uniqueIndex:idx_code_member;uniqueIndex:idx_code_value"`
	MemberID  string `gorm:"size:191;uniqueIndex:idx_code_member"`
	Code      string `gorm:"size:32;uniqueIndex:idx_code_value"`
	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReferralCodeModel) TableName() string {
	return "referral_code"
}

// ShopModel 对应 shop 表：已接入平台的店铺注册表，由安装流程写入
type ShopModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Domain    string `gorm:"size:191;uniqueIndex"`
	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ShopModel) TableName() string {
	return "shop"
}
