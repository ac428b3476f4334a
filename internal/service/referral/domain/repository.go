// internal/service/referral/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ReferralRepository 是推荐关系的持久化端口
type ReferralRepository interface {
	// Create 插入一条 pending 推荐。
	// (tenant_id, referred_member_id) 唯一约束冲突时返回 ErrAlreadyReferred。
	Create(ctx context.Context, referral *MemberReferral) error

	// FindByReferredMember 返回被推荐人名下的推荐关系（任意状态），
	// 不存在时返回 nil, nil。一人最多一条。
	FindByReferredMember(ctx context.Context, tenantID, memberID string) (*MemberReferral, error)

	// FindByReferredEmail 按被推荐人邮箱查找，不存在时返回 nil, nil。
	// 注册时还不是会员的被推荐人只能靠这个键匹配。
	FindByReferredEmail(ctx context.Context, tenantID, email string) (*MemberReferral, error)

	// BindReferredMember 把解析出的会员 ID 回填到尚未匹配的推荐记录上；
	// 条件更新，已匹配的记录不被覆盖。
	BindReferredMember(ctx context.Context, referralID int64, memberID string) error

	// CompletePending 以条件更新把 pending 记录推进到 completed 并回填完成信息。
	// 返回 false 表示记录已不在 pending 状态（并发完成或已过期清扫）。
	CompletePending(ctx context.Context, referralID int64, orderID string, referrerPoints, refereePoints int64, completedAt time.Time) (bool, error)

	// MarkExpired 以条件更新把 pending 记录标记为 expired；非 pending 时不生效
	MarkExpired(ctx context.Context, referralID int64) (bool, error)

	// ExpireDue 批量把 expires_at 早于 cutoff 的 pending 记录标记为 expired，
	// 返回更新的行数（周期清扫使用）。
	ExpireDue(ctx context.Context, cutoff time.Time) (int64, error)
}

// CodeRepository 是推荐码的持久化端口
type CodeRepository interface {
	// EnsureCode 返回会员的推荐码，不存在时生成并保存。
	// 并发生成由 (tenant_id, member_id) 唯一约束收敛到同一条。
	EnsureCode(ctx context.Context, tenantID, memberID string) (*ReferralCode, error)

	// FindByCode 按码值查找，不存在时返回 ErrInvalidCode
	FindByCode(ctx context.Context, tenantID, code string) (*ReferralCode, error)
}

// ShopRepository 读取已接入平台的店铺注册表。
// 注册表由安装/接入流程写入，本服务只读。
type ShopRepository interface {
	Exists(ctx context.Context, shopDomain string) (bool, error)
}
