// internal/service/campaign/application/dto.go
package application

import (
	"lumen/internal/service/campaign/domain"
)

// 事件类型：与外部 webhook 注册子系统约定的取值
const (
	EventOrderCreated   = "order_created"
	EventOrderPaid      = "order_paid"
	EventOrderFulfilled = "order_fulfilled"
)

// OrderEvent 是入站订单事件的载荷。
// 同一事件可能被 at-least-once 投递多次，EventID 用于去重。
type OrderEvent struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	TraceID   string `json:"traceId,omitempty"`

	ShopDomain  string  `json:"shopDomain"`
	OrderID     string  `json:"orderId"`
	OrderNumber int     `json:"orderNumber"`
	TotalPrice  float64 `json:"totalPrice"`
	Currency    string  `json:"currency"`

	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	MemberID      string `json:"memberId,omitempty"`

	// 客户在本单之前的历史统计（由上游按会员维度维护）
	LifetimeOrderCount int      `json:"lifetimeOrderCount"`
	LifetimeSpend      float64  `json:"lifetimeSpend"`
	IsFirstOrder       bool     `json:"isFirstOrder"`
	CustomerTags       []string `json:"customerTags,omitempty"`

	PaymentMethod     string `json:"paymentMethod"`
	FinancialStatus   string `json:"financialStatus"`
	FulfillmentStatus string `json:"fulfillmentStatus"`

	ShippingCountry  string `json:"shippingCountry,omitempty"`
	ShippingProvince string `json:"shippingProvince,omitempty"`
	ShippingCity     string `json:"shippingCity,omitempty"`

	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`

	LineItems []domain.LineItem `json:"lineItems"`
	IsTest    bool              `json:"isTest,omitempty"`
}

// ToFacts 把事件载荷转换为领域层的只读事实对象
func (e *OrderEvent) ToFacts() (*domain.OrderFact, *domain.CustomerFact) {
	order := &domain.OrderFact{
		OrderID:           e.OrderID,
		OrderNumber:       e.OrderNumber,
		TotalPrice:        e.TotalPrice,
		Currency:          e.Currency,
		LineItems:         e.LineItems,
		PaymentMethod:     e.PaymentMethod,
		FinancialStatus:   e.FinancialStatus,
		FulfillmentStatus: e.FulfillmentStatus,
		ShippingCountry:   e.ShippingCountry,
		ShippingProvince:  e.ShippingProvince,
		ShippingCity:      e.ShippingCity,
		UTMSource:         e.UTMSource,
		UTMMedium:         e.UTMMedium,
		UTMCampaign:       e.UTMCampaign,
		IsTest:            e.IsTest,
	}
	customer := &domain.CustomerFact{
		MemberID:           e.MemberID,
		Email:              e.CustomerEmail,
		Phone:              e.CustomerPhone,
		LifetimeOrderCount: e.LifetimeOrderCount,
		LifetimeSpend:      e.LifetimeSpend,
		Tags:               e.CustomerTags,
	}
	return order, customer
}

// ClaimRequest 是 click 领取方式的领取请求
type ClaimRequest struct {
	AllocationID string `json:"allocation_id"`
	MemberID     string `json:"member_id"`
}

// ClaimResponse 返回领取后的发放记录状态
type ClaimResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	VoucherCode string `json:"voucher_code,omitempty"`
}
