// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎核心指标。按 tenant 维度打标签会导致基数爆炸，这里刻意只按结果/类型维度统计。
var (
	TriggerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "campaign",
		Name:      "trigger_outcomes_total",
		Help:      "Campaign rule evaluation outcomes by trigger result.",
	}, []string{"result"})

	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "campaign",
		Name:      "allocations_total",
		Help:      "Reward allocations by reward type and timing.",
	}, []string{"reward_type", "timing"})

	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "ingest",
		Name:      "duplicate_events_total",
		Help:      "Order events skipped because the external event id was already processed.",
	})

	ConsumerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "ingest",
		Name:      "consumer_retries_total",
		Help:      "Transient processing failures that were retried.",
	})

	ParkedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "ingest",
		Name:      "parked_events_total",
		Help:      "Events parked for manual inspection after exhausting retries.",
	})

	ReferralTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "referral",
		Name:      "transitions_total",
		Help:      "Referral state machine transitions and rejections.",
	}, []string{"outcome"})

	PointsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "loyalty",
		Name:      "points_credited_total",
		Help:      "Loyalty points credited by transaction type.",
	}, []string{"transaction_type"})
)
