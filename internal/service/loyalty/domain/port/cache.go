// internal/service/loyalty/domain/port/cache.go
package port

import "context"

// BalanceCache 缓存会员余额，供兑换预检的快速路径使用。
// 未命中或任何故障都回退到数据库读，缓存只是优化。
type BalanceCache interface {
	// Get 返回缓存的余额；ok 为 false 表示未命中
	Get(ctx context.Context, tenantID, memberID string) (balance int64, ok bool)
	// Set 写入余额快照
	Set(ctx context.Context, tenantID, memberID string, balance int64)
	// Invalidate 在余额变更后使缓存失效
	Invalidate(ctx context.Context, tenantID, memberID string)
}
