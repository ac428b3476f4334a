// internal/service/loyalty/domain/repository.go
package domain

import "context"

// CreditCommand 是一次积分入账命令
type CreditCommand struct {
	TenantID string
	MemberID string
	Email    string
	Phone    string

	Type      TransactionType
	Points    int64
	Reference string
	OrderID   string
}

// PaidOrderCommand 记录一笔已支付订单
type PaidOrderCommand struct {
	TenantID    string
	MemberID    string
	Email       string
	Phone       string
	OrderID     string
	OrderAmount float64
}

// PaidOrderRecord 是记录结果：Ordinal 是该订单在会员历史中的序号（1 起始）
type PaidOrderRecord struct {
	Ordinal   int64
	Duplicate bool
}

// LedgerRepository 是积分账本的持久化端口。
// 余额变更必须是原子的：行锁下读状态 → 算 balance_after → 插流水 → 更新状态，
// 全部在一个事务内完成。
type LedgerRepository interface {
	// Credit 入账。(member, type, reference) 幂等：重复请求返回原流水，created 为 false。
	// 会员状态行不存在时创建。
	Credit(ctx context.Context, cmd *CreditCommand) (tx *PointsTransaction, created bool, err error)

	// RecordPaidOrder 幂等地记录已支付订单并递增订单计数与累计消费。
	// (tenant, order) 已存在时返回当初的序号且 Duplicate 为 true。
	RecordPaidOrder(ctx context.Context, cmd *PaidOrderCommand) (*PaidOrderRecord, error)

	// FindStatus 按会员号查状态，不存在时返回 ErrMemberNotFound
	FindStatus(ctx context.Context, tenantID, memberID string) (*MemberLoyaltyStatus, error)

	// FindStatusByEmail 按邮箱查状态，不存在时返回 ErrMemberNotFound
	FindStatusByEmail(ctx context.Context, tenantID, email string) (*MemberLoyaltyStatus, error)

	// ListTransactions 返回会员最近的流水，按时间倒序
	ListTransactions(ctx context.Context, tenantID, memberID string, limit int) ([]*PointsTransaction, error)
}

// ProgramRepository 读取租户的忠诚度计划配置；未配置时返回默认值
type ProgramRepository interface {
	GetProgram(ctx context.Context, tenantID string) (*Program, error)
}
