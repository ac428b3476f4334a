// internal/service/campaign/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"lumen/internal/pkg/mq"
	"lumen/internal/service/campaign/domain/port"
)

// AllocationProducerAdapter 把发放完成事件广播到 Kafka，
// 供通知服务、数据仓库等下游订阅。以会员号为键保证同一会员的事件有序。
type AllocationProducerAdapter struct {
	writer *kafka.Writer
}

// NewAllocationProducerAdapter 创建发放事件生产者
func NewAllocationProducerAdapter(writer *kafka.Writer) *AllocationProducerAdapter {
	return &AllocationProducerAdapter{writer: writer}
}

// PublishAllocated 实现 port.AllocationNotifier
func (p *AllocationProducerAdapter) PublishAllocated(ctx context.Context, event *port.AllocationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal allocation event")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.MemberID), payload); err != nil {
		return errors.Wrap(err, "failed to produce allocation event")
	}
	return nil
}
