package adapter

import (
	"context"
	"fmt"
	"time"

	"lumen/internal/pkg/redis"
)

const claimEventScriptName = "claim_event"

// DedupRedisAdapter 是 domain.EventDeduper 的 Redis 实现。
// webhook 按 at-least-once 投递，同一事件可能被重复推送多次；
// 这里用带 TTL 的占位键做快速去重，(order_id, rule_id) 唯一约束兜底。
type DedupRedisAdapter struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewDedupRedisAdapter 创建去重适配器，创建时加载 Lua 脚本
func NewDedupRedisAdapter(redisClient *redis.Client, ttl time.Duration) (*DedupRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(claimEventScriptName, claimEventScript); err != nil {
		return nil, fmt.Errorf("failed to load event dedup script: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupRedisAdapter{redisClient: redisClient, ttl: ttl}, nil
}

// Claim 尝试占有一个事件 ID。返回 false 表示该事件已被处理过
func (a *DedupRedisAdapter) Claim(ctx context.Context, eventID string) (bool, error) {
	result, err := a.redisClient.RunScript(ctx, claimEventScriptName,
		[]string{eventKey(eventID)}, a.ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("dedup adapter failed to run script: %w", err)
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

// Release 归还占位，让 at-least-once 的重试投递能再次进入。
// 只在处理失败时调用。
func (a *DedupRedisAdapter) Release(ctx context.Context, eventID string) error {
	return a.redisClient.GetClient().Del(ctx, eventKey(eventID)).Err()
}

func eventKey(eventID string) string {
	return fmt.Sprintf("campaign:event:{%s}", eventID)
}

var claimEventScript = `
-- KEYS[1]: 事件占位键, 例如: campaign:event:{evt_abc}
-- ARGV[1]: 占位的 TTL, 毫秒

if redis.call('set', KEYS[1], 1, 'NX', 'PX', ARGV[1]) then
    return 1 -- 占位成功, 本次投递负责处理
else
    return 0 -- 事件已被处理过或正在处理
end
`
