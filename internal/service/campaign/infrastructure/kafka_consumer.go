// internal/service/campaign/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/metrics"
	"lumen/internal/pkg/mq"
	"lumen/internal/service/campaign/application"
)

// OrderEventConsumer 是驱动适配器：监听订单事件主题并驱动活动引擎。
// 消息按分区分发到固定的 worker：同一分区内严格按 offset 逐条处理、逐条提交，
// 高位 offset 不可能先于在途的低位消息被提交，崩溃恢复不会跳过未处理的事件。
// 订单号是生产侧的分区键，同一订单的事件天然落在同一分区、串行处理；
// 不同分区之间并行——created/paid/fulfilled 的相对顺序只在单订单内有意义。
type OrderEventConsumer struct {
	reader     *kafka.Reader
	svc        *application.CampaignService
	workers    int
	maxRetries int

	channels []chan kafka.Message
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// NewOrderEventConsumer 创建订单事件消费者
func NewOrderEventConsumer(reader *kafka.Reader, svc *application.CampaignService, workers, maxRetries int) *OrderEventConsumer {
	if workers <= 0 {
		workers = 4
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OrderEventConsumer{
		reader:     reader,
		svc:        svc,
		workers:    workers,
		maxRetries: maxRetries,
	}
}

// Start 启动分发协程和 worker 池。长期运行，直到 Stop 或 ctx 取消。
func (c *OrderEventConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.group, ctx = errgroup.WithContext(ctx)

	c.channels = make([]chan kafka.Message, c.workers)
	for i := 0; i < c.workers; i++ {
		ch := make(chan kafka.Message, 16)
		c.channels[i] = ch
		c.group.Go(func() error {
			for msg := range ch {
				c.processMessage(ctx, msg)
				if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
					logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit message offset")
				}
			}
			return nil
		})
	}

	c.group.Go(func() error {
		defer func() {
			for _, ch := range c.channels {
				close(ch)
			}
		}()
		logger.Ctx(ctx).Info().
			Str("topic", c.reader.Config().Topic).
			Int("workers", c.workers).
			Msg("Order event consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("Order event consumer shutting down")
					return nil
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to fetch message, retrying")
				time.Sleep(time.Second)
				continue
			}
			c.channels[c.shard(msg.Partition)] <- msg
		}
	})
}

// Stop 优雅停机：停止拉取，排空各 worker 的在途消息
func (c *OrderEventConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.reader.Close()
	if c.group != nil {
		_ = c.group.Wait()
	}
	logger.Ctx(context.Background()).Info().Msg("Order event consumer stopped")
}

// shard 按分区选择 worker。一个分区始终落在同一个 worker 上，
// 分区内的消息因此保持拉取顺序，提交顺序与 offset 顺序一致。
func (c *OrderEventConsumer) shard(partition int) int {
	if partition < 0 {
		return 0
	}
	return partition % c.workers
}

// processMessage 反序列化事件并带退避重试地交给应用服务。
// 重试耗尽的消息记入 parked 指标后放行 offset，避免毒丸消息阻塞分区。
func (c *OrderEventConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event application.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(parentCtx).Error().Err(err).
			Str("key", string(msg.Key)).
			Msg("Failed to unmarshal order event, skipping message")
		metrics.ParkedEvents.Inc()
		return
	}

	propagator := otel.GetTextMapPropagator()
	headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := propagator.Extract(parentCtx, &headerCarrier)

	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := c.svc.HandleOrderEvent(ctx, &event)
		if err == nil {
			return
		}
		if attempt >= c.maxRetries {
			logger.Ctx(ctx).Error().Err(err).
				Str("event_id", event.EventID).
				Str("order_id", event.OrderID).
				Int("attempts", attempt).
				Msg("Order event parked after retries exhausted")
			metrics.ParkedEvents.Inc()
			return
		}
		metrics.ConsumerRetries.Inc()
		logger.Ctx(ctx).Warn().Err(err).
			Str("event_id", event.EventID).
			Int("attempt", attempt).
			Msg("Failed to handle order event, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
