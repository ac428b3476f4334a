package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"lumen/internal/service/campaign/application"
	"lumen/internal/service/campaign/domain"
)

// CampaignHandler 封装了活动引擎的 HTTP 处理器。
// 主通路是 Kafka 消费者；这里暴露审计查询、领取和人工回放三个旁路入口。
type CampaignHandler struct {
	service *application.CampaignService
	stream  *TriggerLogStream // 可为 nil
}

// NewCampaignHandler 创建 HTTP 处理器实例
func NewCampaignHandler(service *application.CampaignService, stream *TriggerLogStream) *CampaignHandler {
	return &CampaignHandler{service: service, stream: stream}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/trigger-logs", h.handleListTriggerLogs)
	mux.HandleFunc("/allocations/claim", h.handleClaim)
	mux.HandleFunc("/events/replay", h.handleReplayEvent)
	if h.stream != nil {
		mux.HandleFunc("/trigger-logs/stream", h.stream.HandleWebSocket)
	}
}

// handleListTriggerLogs 是商家诊断入口："为什么这单没有触发活动"
func (h *CampaignHandler) handleListTriggerLogs(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	q := r.URL.Query()
	filter := domain.TriggerLogFilter{
		TenantID: q.Get("tenant_id"),
		OrderID:  q.Get("order_id"),
		Result:   domain.TriggerResult(q.Get("result")),
	}
	if filter.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	if raw := q.Get("rule_id"); raw != "" {
		ruleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "rule_id must be an integer", http.StatusBadRequest)
			return
		}
		filter.RuleID = ruleID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	logs, err := h.service.ListTriggerLogs(ctx, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"logs": logs})
}

// handleClaim 处理 click 领取方式的领取动作
func (h *CampaignHandler) handleClaim(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AllocationID == "" {
		http.Error(w, "allocation_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ClaimAllocation(ctx, &req)
	if err != nil {
		var statusCode int
		switch {
		case errors.Is(err, domain.ErrAllocationNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(err, domain.ErrAlreadyClaimed),
			errors.Is(err, domain.ErrNotClaimable):
			statusCode = http.StatusConflict
		default:
			statusCode = http.StatusInternalServerError
		}
		http.Error(w, err.Error(), statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleReplayEvent 是人工回放入口：运维把丢失或 parked 的事件重新灌进引擎。
// 走与消费者完全相同的处理路径，去重和幂等键保证重复回放无副作用。
func (h *CampaignHandler) handleReplayEvent(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var event application.OrderEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if event.OrderID == "" || event.EventType == "" {
		http.Error(w, "orderId and eventType are required", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleOrderEvent(ctx, &event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Event replayed.",
	})
}
