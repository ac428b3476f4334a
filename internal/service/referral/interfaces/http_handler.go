package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"lumen/internal/service/referral/application"
	"lumen/internal/service/referral/domain"
)

// ReferralHandler 封装了推荐服务的 HTTP 处理器
type ReferralHandler struct {
	service *application.ReferralService
}

// NewReferralHandler 创建 HTTP 处理器实例
func NewReferralHandler(service *application.ReferralService) *ReferralHandler {
	return &ReferralHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ReferralHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/referrals/code", h.handleGetCode)
	mux.HandleFunc("/referrals/apply", h.handleApply)
	mux.HandleFunc("/referrals/complete", h.handleComplete)
}

// handleGetCode 返回会员的专属推荐码，首次调用时生成
func (h *ReferralHandler) handleGetCode(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tenantID := r.URL.Query().Get("tenant_id")
	memberID := r.URL.Query().Get("member_id")
	if tenantID == "" || memberID == "" {
		http.Error(w, "tenant_id and member_id are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetCode(ctx, tenantID, memberID)
	if err != nil {
		if errors.Is(err, domain.ErrShopNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleApply 绑定推荐码
func (h *ReferralHandler) handleApply(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.ReferralCode == "" || (req.ReferredEmail == "" && req.ReferredPhone == "") {
		http.Error(w, "tenant_id, referral_code and one of referred_email or referred_phone are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Apply(ctx, &req)
	if err != nil {
		var statusCode int
		switch {
		case errors.Is(err, domain.ErrInvalidCode),
			errors.Is(err, domain.ErrShopNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(err, domain.ErrSelfReferral):
			statusCode = http.StatusUnprocessableEntity
		case errors.Is(err, domain.ErrAlreadyReferred):
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

// handleComplete 是推荐完成入口，活动服务在已支付订单上调用。
// skip 结论走 200 返回：它们是业务结果，不是错误。
func (h *ReferralHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.MemberID == "" || req.OrderID == "" {
		http.Error(w, "tenant_id, member_id and order_id are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CompleteForOrder(ctx, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
