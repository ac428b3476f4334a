// internal/service/campaign/domain/fact.go
package domain

import "strings"

// LineItem 是订单行的值对象
type LineItem struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderFact 是一次订单事件的只读快照。
// 引擎对它只读不写，所有字段都来自外部电商平台的 webhook 载荷。
type OrderFact struct {
	OrderID     string
	OrderNumber int // 该订单在客户历史中的序号（1 起始）
	TotalPrice  float64
	Currency    string
	LineItems   []LineItem

	PaymentMethod     string
	FinancialStatus   string // e.g. "paid", "refunded", "voided"
	FulfillmentStatus string

	ShippingCountry  string
	ShippingProvince string
	ShippingCity     string

	UTMSource   string
	UTMMedium   string
	UTMCampaign string

	IsTest bool
}

// ItemCount 返回订单内商品总件数
func (o *OrderFact) ItemCount() int {
	total := 0
	for _, item := range o.LineItems {
		total += item.Quantity
	}
	return total
}

// ProductIDs 返回订单内所有商品 ID
func (o *OrderFact) ProductIDs() []string {
	ids := make([]string, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// IsRefunded 判断订单是否处于退款/作废状态
func (o *OrderFact) IsRefunded() bool {
	s := strings.ToLower(o.FinancialStatus)
	return s == "refunded" || s == "partially_refunded" || s == "voided"
}

// IsCancelled 判断订单是否已取消
func (o *OrderFact) IsCancelled() bool {
	return strings.ToLower(o.FinancialStatus) == "cancelled"
}

// CustomerFact 是客户在本次订单时点的只读快照。
// LifetimeOrderCount 不包含本次订单，"新客" 的判定依赖这一点。
type CustomerFact struct {
	MemberID string // 可能为空：非会员下单
	Email    string
	Phone    string

	LifetimeOrderCount int
	LifetimeSpend      float64
	Tags               []string
}

// HasMember 判断本次订单是否能关联到会员
func (c *CustomerFact) HasMember() bool {
	return c.MemberID != ""
}

// IsNewCustomer 判断是否首单客户（不含本单）
func (c *CustomerFact) IsNewCustomer() bool {
	return c.LifetimeOrderCount == 0
}
