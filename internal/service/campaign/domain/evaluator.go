// internal/service/campaign/domain/evaluator.go
package domain

import (
	"fmt"
	"strings"

	"lumen/internal/service/campaign/domain/port"
)

// Evaluator 是条件评估器：纯函数式，无副作用。
// 求值过程中遇到的异常情况（事实数据缺失、值无法解析）一律评估为 false，
// 绝不 panic；诊断信息收集到 Diagnostics 里由调用方决定如何记录。
type Evaluator struct {
	exprEngine port.ExpressionEngine
}

// NewEvaluator 创建一个评估器。exprEngine 可以为 nil，
// 此时 expression 类条件一律评估为 false 并产生诊断。
func NewEvaluator(exprEngine port.ExpressionEngine) *Evaluator {
	return &Evaluator{exprEngine: exprEngine}
}

// GroupResult 是一个条件组的评估结果
type GroupResult struct {
	Matched     bool
	Diagnostics []string // 值解析失败等异常情况的说明，供审计日志使用
}

// EvaluateConditions 对一组条件做 AND 评估；空组恒为真。
func (e *Evaluator) EvaluateConditions(nodes []ConditionNode, order *OrderFact, customer *CustomerFact) GroupResult {
	result := GroupResult{Matched: true}
	for i := range nodes {
		ok, diag := e.evaluateNode(&nodes[i], order, customer)
		if diag != "" {
			result.Diagnostics = append(result.Diagnostics, diag)
		}
		if !ok {
			result.Matched = false
			// 继续评估剩余节点没有意义：组内是 AND 语义
			return result
		}
	}
	return result
}

// evaluateNode 评估单个条件节点。
// 返回的 diag 非空时表示发生了"按失败处理"的异常，而非正常的不匹配。
func (e *Evaluator) evaluateNode(node *ConditionNode, order *OrderFact, customer *CustomerFact) (bool, string) {
	switch node.Type {
	case ConditionOrderValue:
		return e.evalNumeric(node, order.TotalPrice)
	case ConditionItemCount:
		return e.evalNumeric(node, float64(order.ItemCount()))
	case ConditionLifetimeOrders:
		return e.evalNumeric(node, float64(customer.LifetimeOrderCount))
	case ConditionLifetimeSpend:
		return e.evalNumeric(node, customer.LifetimeSpend)
	case ConditionOrderNumber:
		// 客户历史中的 1 起始序号，来自持久化的订单计数，而不是事件到达顺序
		return e.evalNumeric(node, float64(order.OrderNumber))

	case ConditionProduct:
		return e.evalSet(node, order.ProductIDs())
	case ConditionCustomerTags:
		return e.evalSet(node, customer.Tags)
	case ConditionPaymentMethod:
		return e.evalScalar(node, order.PaymentMethod)
	case ConditionCountry:
		return e.evalScalar(node, order.ShippingCountry)
	case ConditionProvince:
		return e.evalScalar(node, order.ShippingProvince)
	case ConditionCity:
		return e.evalScalar(node, order.ShippingCity)

	case ConditionUTMSource:
		return e.evalString(node, order.UTMSource)
	case ConditionUTMMedium:
		return e.evalString(node, order.UTMMedium)
	case ConditionUTMCampaign:
		return e.evalString(node, order.UTMCampaign)

	case ConditionCustomerType:
		return e.evalCustomerType(node, customer)

	case ConditionExpression:
		return e.evalExpression(node, order, customer)
	}
	return false, fmt.Sprintf("unknown condition type %q treated as non-match", node.Type)
}

// evalNumeric 处理 gte/lte/eq/between，between 为闭区间
func (e *Evaluator) evalNumeric(node *ConditionNode, actual float64) (bool, string) {
	if node.Operator == OpBetween {
		bounds, err := node.betweenBounds()
		if err != nil {
			return false, fmt.Sprintf("condition %s: %v", node.Type, err)
		}
		return actual >= bounds[0] && actual <= bounds[1], ""
	}
	expected, err := node.numberValue()
	if err != nil {
		return false, fmt.Sprintf("condition %s: %v", node.Type, err)
	}
	switch node.Operator {
	case OpGte:
		return actual >= expected, ""
	case OpLte:
		return actual <= expected, ""
	case OpEq:
		return actual == expected, ""
	}
	return false, fmt.Sprintf("condition %s: unsupported numeric operator %q", node.Type, node.Operator)
}

// evalSet 处理多值事实（商品列表、客户标签）的集合算子，大小写敏感精确匹配
func (e *Evaluator) evalSet(node *ConditionNode, actual []string) (bool, string) {
	list, err := node.listValue()
	if err != nil {
		return false, fmt.Sprintf("condition %s: %v", node.Type, err)
	}
	if len(list) == 0 {
		return false, fmt.Sprintf("condition %s: empty list value", node.Type)
	}
	actualSet := make(map[string]bool, len(actual))
	for _, v := range actual {
		actualSet[v] = true
	}
	anyOverlap := false
	for _, candidate := range list {
		if actualSet[candidate] {
			anyOverlap = true
			break
		}
	}
	switch node.Operator {
	case OpInList, OpIn, OpHas:
		return anyOverlap, ""
	case OpNotIn, OpNotHas:
		return !anyOverlap, ""
	}
	return false, fmt.Sprintf("condition %s: unsupported set operator %q", node.Type, node.Operator)
}

// evalScalar 处理单值事实（支付方式、收货国家）的集合/精确算子
func (e *Evaluator) evalScalar(node *ConditionNode, actual string) (bool, string) {
	if actual == "" {
		// 事实数据缺失：按不匹配处理，不算异常
		return false, ""
	}
	if node.Operator == OpExact {
		expected, err := node.stringValue()
		if err != nil {
			return false, fmt.Sprintf("condition %s: %v", node.Type, err)
		}
		return actual == expected, ""
	}
	return e.evalSet(node, []string{actual})
}

// evalString 处理字符串算子，大小写敏感
func (e *Evaluator) evalString(node *ConditionNode, actual string) (bool, string) {
	if actual == "" {
		// e.g. 订单上没有 UTM 参数：评估为 false，不抛错
		return false, ""
	}
	if node.Operator == OpIn || node.Operator == OpNotIn {
		return e.evalSet(node, []string{actual})
	}
	expected, err := node.stringValue()
	if err != nil {
		return false, fmt.Sprintf("condition %s: %v", node.Type, err)
	}
	switch node.Operator {
	case OpExact:
		return actual == expected, ""
	case OpStartsWith:
		return strings.HasPrefix(actual, expected), ""
	case OpContains:
		return strings.Contains(actual, expected), ""
	case OpNotContains:
		return !strings.Contains(actual, expected), ""
	}
	return false, fmt.Sprintf("condition %s: unsupported string operator %q", node.Type, node.Operator)
}

// evalCustomerType 处理新客/老客判定：
// new = 历史订单数（不含本单）为 0；returning = 至少 1 单
func (e *Evaluator) evalCustomerType(node *ConditionNode, customer *CustomerFact) (bool, string) {
	expected, err := node.stringValue()
	if err != nil {
		return false, fmt.Sprintf("condition customer_type: %v", err)
	}
	switch expected {
	case "new":
		return customer.IsNewCustomer(), ""
	case "returning":
		return !customer.IsNewCustomer(), ""
	}
	return false, fmt.Sprintf("condition customer_type: unknown value %q", expected)
}

// evalExpression 委托给表达式引擎端口
func (e *Evaluator) evalExpression(node *ConditionNode, order *OrderFact, customer *CustomerFact) (bool, string) {
	if e.exprEngine == nil {
		return false, "expression condition present but no expression engine configured"
	}
	expr, err := node.stringValue()
	if err != nil {
		return false, fmt.Sprintf("condition expression: %v", err)
	}
	ok, err := e.exprEngine.Evaluate(expr, BuildExpressionFact(order, customer))
	if err != nil {
		return false, fmt.Sprintf("condition expression: %v", err)
	}
	return ok, ""
}

// BuildExpressionFact 把订单/客户事实打平成表达式引擎使用的变量集合
func BuildExpressionFact(order *OrderFact, customer *CustomerFact) map[string]interface{} {
	return map[string]interface{}{
		"order_value":          order.TotalPrice,
		"order_number":         order.OrderNumber,
		"item_count":           order.ItemCount(),
		"currency":             order.Currency,
		"payment_method":       order.PaymentMethod,
		"shipping_country":     order.ShippingCountry,
		"utm_source":           order.UTMSource,
		"utm_medium":           order.UTMMedium,
		"utm_campaign":         order.UTMCampaign,
		"lifetime_order_count": customer.LifetimeOrderCount,
		"lifetime_spend":       customer.LifetimeSpend,
		"customer_tags":        customer.Tags,
	}
}

// RuleEvaluation 是单条规则对一次订单的完整评估结论
type RuleEvaluation struct {
	Matched     bool
	FailedGroup string   // 第一个未通过的条件组名；匹配成功时为空
	Diagnostics []string // 评估过程中的异常说明
}

// EvaluateRule 对规则的四个条件组做 AND 评估。
// 规则必须全部四组都通过才算命中；任何一组内的异常都算该组不匹配。
func (e *Evaluator) EvaluateRule(rule *CampaignRule, order *OrderFact, customer *CustomerFact) RuleEvaluation {
	eval := RuleEvaluation{Matched: true}
	for _, group := range rule.Groups() {
		result := e.EvaluateConditions(group.Nodes, order, customer)
		eval.Diagnostics = append(eval.Diagnostics, result.Diagnostics...)
		if !result.Matched {
			eval.Matched = false
			eval.FailedGroup = group.Name
			return eval
		}
	}
	return eval
}
