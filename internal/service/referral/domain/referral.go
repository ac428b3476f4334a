// internal/service/referral/domain/referral.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferralStatus 是推荐关系的生命周期状态。
// pending 是唯一的活跃状态；completed 和 expired 都是终态，
// 任何写路径都不允许把终态改回别的状态。
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
	ReferralExpired   ReferralStatus = "expired"
)

// MemberReferral 是一条推荐关系聚合：
// 被推荐人通过推荐码注册后创建，在其首笔已支付订单时完成。
// 被推荐人注册时往往还不是会员，只留下邮箱/手机号等身份线索；
// ReferredMemberID 为空表示尚未匹配到会员，解析成功后回填。
type MemberReferral struct {
	ID               int64
	TenantID         string
	ReferralCode     string
	ReferrerMemberID string
	ReferredMemberID string

	ReferredEmail string
	ReferredPhone string
	ReferredName  string

	Status ReferralStatus

	// 完成时回填
	OrderID        string
	ReferrerPoints int64
	RefereePoints  int64

	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// IsExpiredAt 判断 pending 记录在 t 时刻是否已过期。
// 过期的权威判定是惰性的：读到过期的 pending 就视同 expired，
// 周期清扫只是把状态列补齐，不是判定依据。
func (r *MemberReferral) IsExpiredAt(t time.Time) bool {
	return r.Status == ReferralPending && t.After(r.ExpiresAt)
}

// ReferralCode 是推荐人的专属推荐码，一人一码，码在租户内唯一
type ReferralCode struct {
	ID       int64
	TenantID string
	MemberID string
	Code     string

	CreatedAt time.Time
}

// NewReferralCode 生成一个新的推荐码值（8 位大写，去掉易混淆字符由展示层处理）
func NewReferralCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:8])
}

// CompletionOutcome 是一次完成尝试的结论。
// Skipped 的情况都是终态业务结果，调用方不应重试。
type CompletionOutcome struct {
	Success bool
	Skipped bool
	Reason  string

	ReferrerMemberID string
	ReferrerPoints   int64
	RefereePoints    int64
	ReferrerBalance  int64
	RefereeBalance   int64
}

// Skip 原因的规范取值：与外部 HTTP 契约一致
const (
	SkipNoReferrerLinked = "no_referrer_linked"
	SkipNotFirstOrder    = "not_first_order"
	SkipReferralExpired  = "referral_expired"
	SkipAlreadyCompleted = "already_completed"
)
