package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"lumen/internal/service/loyalty/application"
	"lumen/internal/service/loyalty/domain"
)

// LoyaltyHandler 封装了积分服务的 HTTP 处理器
type LoyaltyHandler struct {
	service *application.LoyaltyService
}

// NewLoyaltyHandler 创建 HTTP 处理器实例
func NewLoyaltyHandler(service *application.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *LoyaltyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/points/credit", h.handleCreditPoints)
	mux.HandleFunc("/points/bonus", h.handleCreditBonus)
	mux.HandleFunc("/points/redeem-check", h.handleRedeemCheck)
	mux.HandleFunc("/points/history", h.handleListTransactions)
	mux.HandleFunc("/orders/record-paid", h.handleRecordPaidOrder)
	mux.HandleFunc("/members/status", h.handleMemberStatus)
}

func (h *LoyaltyHandler) handleCreditPoints(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CreditPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.MemberID == "" {
		http.Error(w, "tenant_id and member_id are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreditPoints(ctx, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *LoyaltyHandler) handleCreditBonus(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CreditBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.MemberID == "" {
		http.Error(w, "tenant_id and member_id are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreditBonus(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPoints) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRedeemCheck 兑换预检：所有业务性失败都是 200 + valid=false
func (h *LoyaltyHandler) handleRedeemCheck(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.RedeemCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ShopDomain == "" || req.CustomerEmail == "" {
		http.Error(w, "shop_domain and customer_email are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.RedeemCheck(ctx, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *LoyaltyHandler) handleRecordPaidOrder(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.RecordPaidOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.MemberID == "" || req.OrderID == "" {
		http.Error(w, "tenant_id, member_id and order_id are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.RecordPaidOrder(ctx, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *LoyaltyHandler) handleMemberStatus(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tenantID := r.URL.Query().Get("tenant_id")
	memberID := r.URL.Query().Get("member_id")
	email := r.URL.Query().Get("email")
	if tenantID == "" || (memberID == "" && email == "") {
		http.Error(w, "tenant_id and one of member_id or email are required", http.StatusBadRequest)
		return
	}

	var resp *application.MemberStatusResponse
	var err error
	if memberID != "" {
		resp, err = h.service.GetMemberStatus(ctx, tenantID, memberID)
	} else {
		resp, err = h.service.GetMemberStatusByEmail(ctx, tenantID, email)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *LoyaltyHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	memberID := q.Get("member_id")
	if tenantID == "" || memberID == "" {
		http.Error(w, "tenant_id and member_id are required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	txs, err := h.service.ListTransactions(ctx, tenantID, memberID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"transactions": txs})
}
