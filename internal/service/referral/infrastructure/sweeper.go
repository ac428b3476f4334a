// internal/service/referral/infrastructure/sweeper.go
package infrastructure

import (
	"context"
	"time"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/zookeeper"
	"lumen/internal/service/referral/application"
)

// ExpirySweeper 周期性地清扫过期的 pending 推荐。
// 过期的权威判定是惰性的（读路径上做），清扫只负责把状态列补齐。
// 多实例部署时通过 ZooKeeper 锁保证每轮只有一个实例执行。
type ExpirySweeper struct {
	svc      *application.ReferralService
	zkConn   *zookeeper.Conn
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirySweeper 创建清扫器
func NewExpirySweeper(svc *application.ReferralService, zkConn *zookeeper.Conn, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{
		svc:      svc,
		zkConn:   zkConn,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start 启动清扫循环。长期运行，直到 Stop 或 ctx 取消。
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("Referral expiry sweeper started")
		for {
			select {
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("Referral expiry sweeper shutting down")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop 停止清扫循环并等待在途的一轮结束
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// runOnce 竞争锁并执行一轮清扫；拿不到锁说明别的实例在干活，直接放弃本轮
func (s *ExpirySweeper) runOnce(ctx context.Context) {
	lock, err := zookeeper.NewDistributedLock(s.zkConn, "referral-sweep")
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to prepare sweep lock")
		return
	}
	acquired, err := lock.TryLock()
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to acquire sweep lock")
		return
	}
	if !acquired {
		logger.Ctx(ctx).Debug().Msg("Sweep lock held by another instance, skipping this round")
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to release sweep lock")
		}
	}()

	if _, err := s.svc.Sweep(ctx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Referral expiry sweep failed")
	}
}
