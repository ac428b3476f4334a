package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/redis"
)

const balanceCacheTTL = 5 * time.Minute

// BalanceCacheRedisAdapter 是 port.BalanceCache 的 Redis 实现。
// 缓存只服务兑换预检的读路径；任何故障都静默降级为数据库读。
type BalanceCacheRedisAdapter struct {
	redisClient *redis.Client
}

// NewBalanceCacheRedisAdapter 创建余额缓存适配器
func NewBalanceCacheRedisAdapter(redisClient *redis.Client) *BalanceCacheRedisAdapter {
	return &BalanceCacheRedisAdapter{redisClient: redisClient}
}

// Get 返回缓存的余额
func (a *BalanceCacheRedisAdapter) Get(ctx context.Context, tenantID, memberID string) (int64, bool) {
	raw, err := a.redisClient.GetClient().Get(ctx, balanceKey(tenantID, memberID)).Result()
	if err != nil {
		if err != goredis.Nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Balance cache read failed, falling back to database")
		}
		return 0, false
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return balance, true
}

// Set 写入余额快照
func (a *BalanceCacheRedisAdapter) Set(ctx context.Context, tenantID, memberID string, balance int64) {
	if err := a.redisClient.GetClient().
		Set(ctx, balanceKey(tenantID, memberID), balance, balanceCacheTTL).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Balance cache write failed")
	}
}

// Invalidate 在余额变更后删除缓存
func (a *BalanceCacheRedisAdapter) Invalidate(ctx context.Context, tenantID, memberID string) {
	if err := a.redisClient.GetClient().
		Del(ctx, balanceKey(tenantID, memberID)).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Balance cache invalidation failed")
	}
}

func balanceKey(tenantID, memberID string) string {
	return fmt.Sprintf("loyalty:balance:{%s}:%s", tenantID, memberID)
}
