// internal/service/loyalty/infrastructure/gorm_model.go
package infrastructure

import "time"

// MemberStatusModel 对应 member_loyalty_status 表，每个会员一行
type MemberStatusModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	TenantID string `gorm:"size:191;uniqueIndex:idx_status_member;index:idx_status_email"`
	MemberID string `gorm:"size:191;uniqueIndex:idx_status_member"`
	Email    string `gorm:"size:255;index:idx_status_email"`
	Phone    string `gorm:"size:64"`

	Balance        int64
	PaidOrderCount int64
	LifetimeSpend  float64 `gorm:"type:decimal(14,2)"`
	Tier           string  `gorm:"size:16"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (MemberStatusModel) TableName() string {
	return "member_loyalty_status"
}

// PointsTransactionModel 对应 loyalty_points_transaction 表（只追加）。
// (member_id, type, reference) 唯一是入账幂等键。
type PointsTransactionModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	TenantID string `gorm:"size:191;index:idx_tx_member"`
	MemberID string `gorm:"size:191;index:idx_tx_member;uniqueIndex:idx_tx_idem"`

	Type         string `gorm:"size:32;uniqueIndex:idx_tx_idem"`
	Points       int64
	BalanceAfter int64

	Reference string `gorm:"size:191;uniqueIndex:idx_tx_idem"`
	OrderID   string `gorm:"size:191"`

	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PointsTransactionModel) TableName() string {
	return "loyalty_points_transaction"
}

// PaidOrderModel 对应 member_paid_order 表：
// (tenant_id, order_id) 唯一，是订单计数幂等的落地点。
type PaidOrderModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	TenantID    string  `gorm:"size:191;uniqueIndex:idx_paid_order"`
	OrderID     string  `gorm:"size:191;uniqueIndex:idx_paid_order"`
	MemberID    string  `gorm:"size:191;index"`
	OrderAmount float64 `gorm:"type:decimal(12,2)"`
	Ordinal     int64
	CreatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaidOrderModel) TableName() string {
	return "member_paid_order"
}

// ProgramModel 对应 loyalty_program 表：租户级计划配置
type ProgramModel struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	TenantID          string `gorm:"size:191;uniqueIndex"`
	RedemptionEnabled bool
	RedeemRate        float64 `gorm:"type:decimal(10,2)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProgramModel) TableName() string {
	return "loyalty_program"
}
