// internal/service/campaign/domain/condition.go
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ConditionType 选择条件节点的语义域。
// 这是一个封闭集合：商家侧保存规则时就会校验，而不是每次评估时反复解析。
type ConditionType string

const (
	ConditionOrderValue     ConditionType = "order_value"
	ConditionItemCount      ConditionType = "item_count"
	ConditionProduct        ConditionType = "product"
	ConditionPaymentMethod  ConditionType = "payment_method"
	ConditionLifetimeOrders ConditionType = "customer_lifetime_orders"
	ConditionLifetimeSpend  ConditionType = "customer_lifetime_spend"
	ConditionCustomerTags   ConditionType = "customer_tags"
	ConditionCustomerType   ConditionType = "customer_type"
	ConditionOrderNumber    ConditionType = "order_number"
	ConditionCountry        ConditionType = "shipping_country"
	ConditionProvince       ConditionType = "shipping_province"
	ConditionCity           ConditionType = "shipping_city"
	ConditionUTMSource      ConditionType = "utm_source"
	ConditionUTMMedium      ConditionType = "utm_medium"
	ConditionUTMCampaign    ConditionType = "utm_campaign"
	// ConditionExpression 允许商家编写 CEL 表达式，由表达式引擎适配器评估
	ConditionExpression ConditionType = "expression"
)

// Operator 是条件节点的比较算子
type Operator string

const (
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpEq          Operator = "eq"
	OpBetween     Operator = "between"
	OpInList      Operator = "in_list"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpHas         Operator = "has"
	OpNotHas      Operator = "not_has"
	OpExact       Operator = "exact"
	OpStartsWith  Operator = "starts_with"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpEval        Operator = "eval" // 仅用于 expression 类型
)

// allowedOperators 定义了每种条件类型的合法算子集合
var allowedOperators = map[ConditionType][]Operator{
	ConditionOrderValue:     {OpGte, OpLte, OpEq, OpBetween},
	ConditionItemCount:      {OpGte, OpLte, OpEq, OpBetween},
	ConditionLifetimeOrders: {OpGte, OpLte, OpEq, OpBetween},
	ConditionLifetimeSpend:  {OpGte, OpLte, OpEq, OpBetween},
	ConditionOrderNumber:    {OpGte, OpLte, OpEq, OpBetween},
	ConditionProduct:        {OpInList, OpIn, OpNotIn, OpHas, OpNotHas},
	ConditionPaymentMethod:  {OpInList, OpIn, OpNotIn, OpExact},
	ConditionCustomerTags:   {OpInList, OpIn, OpNotIn, OpHas, OpNotHas},
	ConditionCountry:        {OpInList, OpIn, OpNotIn, OpExact},
	ConditionProvince:       {OpInList, OpIn, OpNotIn, OpExact},
	ConditionCity:           {OpInList, OpIn, OpNotIn, OpExact},
	ConditionUTMSource:      {OpExact, OpStartsWith, OpContains, OpNotContains, OpIn, OpNotIn},
	ConditionUTMMedium:      {OpExact, OpStartsWith, OpContains, OpNotContains, OpIn, OpNotIn},
	ConditionUTMCampaign:    {OpExact, OpStartsWith, OpContains, OpNotContains, OpIn, OpNotIn},
	ConditionCustomerType:   {OpEq, OpExact},
	ConditionExpression:     {OpEval},
}

// ConditionNode 是规则条件树的叶子节点：{ type, operator, value }。
// Value 保持原始 JSON，按类型在求值时解码；保存时通过 Validate 校验。
// RequiredScope 声明了该节点依赖的外部数据访问权限——
// 租户缺少该权限时，整条规则不可评估（记为 failed），而不是静默跳过。
type ConditionNode struct {
	Type          ConditionType   `json:"type"`
	Operator      Operator        `json:"operator"`
	Value         json.RawMessage `json:"value"`
	RequiredScope string          `json:"required_scope,omitempty"`
}

// Validate 在规则保存时执行，保证运行期不会遇到未知类型/算子组合
func (n *ConditionNode) Validate() error {
	ops, ok := allowedOperators[n.Type]
	if !ok {
		return fmt.Errorf("unknown condition type %q", n.Type)
	}
	for _, op := range ops {
		if op == n.Operator {
			return n.validateValue()
		}
	}
	return fmt.Errorf("operator %q is not allowed for condition type %q", n.Operator, n.Type)
}

func (n *ConditionNode) validateValue() error {
	switch n.Operator {
	case OpBetween:
		bounds, err := n.betweenBounds()
		if err != nil {
			return err
		}
		if bounds[0] > bounds[1] {
			return fmt.Errorf("between bounds are inverted: [%v, %v]", bounds[0], bounds[1])
		}
	case OpGte, OpLte, OpEq:
		if n.Type == ConditionCustomerType {
			v, err := n.stringValue()
			if err != nil {
				return err
			}
			if v != "new" && v != "returning" {
				return fmt.Errorf("customer_type value must be 'new' or 'returning', got %q", v)
			}
			return nil
		}
		if _, err := n.numberValue(); err != nil {
			return err
		}
	case OpInList, OpIn, OpNotIn, OpHas, OpNotHas:
		list, err := n.listValue()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("list value for %s/%s is empty", n.Type, n.Operator)
		}
	case OpExact, OpStartsWith, OpContains, OpNotContains, OpEval:
		if _, err := n.stringValue(); err != nil {
			return err
		}
	}
	return nil
}

// numberValue 将 Value 解析为数字。同时接受 JSON number 和数字字符串。
func (n *ConditionNode) numberValue() (float64, error) {
	var f float64
	if err := json.Unmarshal(n.Value, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(n.Value, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", s)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value %s is not a number", string(n.Value))
}

// betweenBounds 解析 between 的双元素边界（闭区间）
func (n *ConditionNode) betweenBounds() ([2]float64, error) {
	var bounds [2]float64
	var arr []float64
	if err := json.Unmarshal(n.Value, &arr); err != nil {
		return bounds, fmt.Errorf("between value must be a two-element array: %s", string(n.Value))
	}
	if len(arr) != 2 {
		return bounds, fmt.Errorf("between value must have exactly two elements, got %d", len(arr))
	}
	bounds[0], bounds[1] = arr[0], arr[1]
	return bounds, nil
}

// listValue 解析集合值。同时接受 JSON 数组和逗号分隔字符串。
func (n *ConditionNode) listValue() ([]string, error) {
	var arr []string
	if err := json.Unmarshal(n.Value, &arr); err == nil {
		return arr, nil
	}
	var s string
	if err := json.Unmarshal(n.Value, &s); err == nil {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("value %s is not a list", string(n.Value))
}

func (n *ConditionNode) stringValue() (string, error) {
	var s string
	if err := json.Unmarshal(n.Value, &s); err != nil {
		return "", fmt.Errorf("value %s is not a string", string(n.Value))
	}
	return s, nil
}

// ValidateConditions 校验一组条件节点（规则保存路径使用）
func ValidateConditions(nodes []ConditionNode) error {
	for i := range nodes {
		if err := nodes[i].Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}
