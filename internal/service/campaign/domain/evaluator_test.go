package domain

import (
	"encoding/json"
	"testing"
)

func node(t ConditionType, op Operator, value string) ConditionNode {
	return ConditionNode{Type: t, Operator: op, Value: json.RawMessage(value)}
}

func testOrder() *OrderFact {
	return &OrderFact{
		OrderID:     "ord-1",
		OrderNumber: 1,
		TotalPrice:  250,
		Currency:    "USD",
		LineItems: []LineItem{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
		PaymentMethod:   "credit_card",
		ShippingCountry: "US",
		UTMSource:       "newsletter",
	}
}

func testCustomer() *CustomerFact {
	return &CustomerFact{
		MemberID:           "mem-1",
		LifetimeOrderCount: 0,
		Tags:               []string{"vip", "beta"},
	}
}

func TestEvaluateNumericConditions(t *testing.T) {
	cases := []struct {
		name  string
		node  ConditionNode
		price float64
		want  bool
	}{
		{"gte match", node(ConditionOrderValue, OpGte, `200`), 250, true},
		{"gte boundary", node(ConditionOrderValue, OpGte, `250`), 250, true},
		{"gte below", node(ConditionOrderValue, OpGte, `300`), 250, false},
		{"lte match", node(ConditionOrderValue, OpLte, `300`), 250, true},
		{"eq match", node(ConditionOrderValue, OpEq, `250`), 250, true},
		{"eq mismatch", node(ConditionOrderValue, OpEq, `249.99`), 250, false},
		{"between inside", node(ConditionOrderValue, OpBetween, `[100, 500]`), 250, true},
		{"between lower bound inclusive", node(ConditionOrderValue, OpBetween, `[100, 500]`), 100, true},
		{"between upper bound inclusive", node(ConditionOrderValue, OpBetween, `[100, 500]`), 500, true},
		{"between below", node(ConditionOrderValue, OpBetween, `[100, 500]`), 99, false},
		{"between above", node(ConditionOrderValue, OpBetween, `[100, 500]`), 501, false},
		{"numeric string value", node(ConditionOrderValue, OpGte, `"200"`), 250, true},
	}

	e := NewEvaluator(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := testOrder()
			order.TotalPrice = tc.price
			result := e.EvaluateConditions([]ConditionNode{tc.node}, order, testCustomer())
			if result.Matched != tc.want {
				t.Errorf("matched = %v, want %v", result.Matched, tc.want)
			}
		})
	}
}

func TestEvaluateMalformedValueIsFalseWithDiagnostic(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []ConditionNode{
		node(ConditionOrderValue, OpGte, `"not-a-number"`),
		node(ConditionOrderValue, OpBetween, `[100]`),
		node(ConditionProduct, OpInList, `42`),
		node(ConditionProduct, OpInList, `[]`),
		node("made_up_type", OpEq, `1`),
	}
	for _, n := range cases {
		result := e.EvaluateConditions([]ConditionNode{n}, testOrder(), testCustomer())
		if result.Matched {
			t.Errorf("condition %s/%s: malformed value must evaluate to false", n.Type, n.Operator)
		}
		if len(result.Diagnostics) == 0 {
			t.Errorf("condition %s/%s: expected a diagnostic entry", n.Type, n.Operator)
		}
	}
}

func TestEvaluateSetConditions(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []struct {
		name string
		node ConditionNode
		want bool
	}{
		{"product overlap", node(ConditionProduct, OpInList, `["prod-2", "prod-9"]`), true},
		{"product no overlap", node(ConditionProduct, OpInList, `["prod-8", "prod-9"]`), false},
		{"product not_in", node(ConditionProduct, OpNotIn, `["prod-8"]`), true},
		{"product case sensitive", node(ConditionProduct, OpInList, `["PROD-1"]`), false},
		{"tags has", node(ConditionCustomerTags, OpHas, `["vip"]`), true},
		{"tags not_has", node(ConditionCustomerTags, OpNotHas, `["banned"]`), true},
		{"comma separated string value", node(ConditionProduct, OpInList, `"prod-9, prod-1"`), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := e.EvaluateConditions([]ConditionNode{tc.node}, testOrder(), testCustomer())
			if result.Matched != tc.want {
				t.Errorf("matched = %v, want %v", result.Matched, tc.want)
			}
		})
	}
}

func TestEvaluateScalarAndStringConditions(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []struct {
		name  string
		node  ConditionNode
		setup func(o *OrderFact)
		want  bool
	}{
		{"payment exact", node(ConditionPaymentMethod, OpExact, `"credit_card"`), nil, true},
		{"payment in", node(ConditionPaymentMethod, OpIn, `["paypal", "credit_card"]`), nil, true},
		{"country exact mismatch", node(ConditionCountry, OpExact, `"DE"`), nil, false},
		{"utm exact", node(ConditionUTMSource, OpExact, `"newsletter"`), nil, true},
		{"utm starts_with", node(ConditionUTMSource, OpStartsWith, `"news"`), nil, true},
		{"utm contains", node(ConditionUTMSource, OpContains, `"letter"`), nil, true},
		{"utm not_contains", node(ConditionUTMSource, OpNotContains, `"paid"`), nil, true},
		{
			"missing utm evaluates false",
			node(ConditionUTMSource, OpExact, `"newsletter"`),
			func(o *OrderFact) { o.UTMSource = "" },
			false,
		},
		{
			"missing country evaluates false",
			node(ConditionCountry, OpExact, `"US"`),
			func(o *OrderFact) { o.ShippingCountry = "" },
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := testOrder()
			if tc.setup != nil {
				tc.setup(order)
			}
			result := e.EvaluateConditions([]ConditionNode{tc.node}, order, testCustomer())
			if result.Matched != tc.want {
				t.Errorf("matched = %v, want %v", result.Matched, tc.want)
			}
			// 缺失事实按不匹配处理，不应产生诊断
			if tc.setup != nil && len(result.Diagnostics) != 0 {
				t.Errorf("missing fact should not produce diagnostics, got %v", result.Diagnostics)
			}
		})
	}
}

func TestEvaluateCustomerType(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []struct {
		name          string
		value         string
		lifetimeCount int
		want          bool
	}{
		{"new customer matches new", `"new"`, 0, true},
		{"returning customer fails new", `"new"`, 3, false},
		{"returning matches returning", `"returning"`, 1, true},
		{"new customer fails returning", `"returning"`, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			customer := testCustomer()
			customer.LifetimeOrderCount = tc.lifetimeCount
			result := e.EvaluateConditions(
				[]ConditionNode{node(ConditionCustomerType, OpEq, tc.value)},
				testOrder(), customer)
			if result.Matched != tc.want {
				t.Errorf("matched = %v, want %v", result.Matched, tc.want)
			}
		})
	}
}

func TestEvaluateConditionsAndSemantics(t *testing.T) {
	e := NewEvaluator(nil)

	// 空组恒为真
	if result := e.EvaluateConditions(nil, testOrder(), testCustomer()); !result.Matched {
		t.Error("empty condition group must match")
	}

	// 组内 AND：一个失败整组失败
	nodes := []ConditionNode{
		node(ConditionOrderValue, OpGte, `200`),
		node(ConditionPaymentMethod, OpExact, `"paypal"`),
	}
	if result := e.EvaluateConditions(nodes, testOrder(), testCustomer()); result.Matched {
		t.Error("group with one failing condition must not match")
	}
}

type stubExprEngine struct {
	result  bool
	err     error
	gotExpr string
}

func (s *stubExprEngine) Evaluate(expression string, fact map[string]interface{}) (bool, error) {
	s.gotExpr = expression
	return s.result, s.err
}

func TestEvaluateExpressionCondition(t *testing.T) {
	engine := &stubExprEngine{result: true}
	e := NewEvaluator(engine)

	result := e.EvaluateConditions(
		[]ConditionNode{node(ConditionExpression, OpEval, `"order_value >= 100.0"`)},
		testOrder(), testCustomer())
	if !result.Matched {
		t.Error("expression condition should delegate to the engine result")
	}
	if engine.gotExpr != "order_value >= 100.0" {
		t.Errorf("engine received expression %q", engine.gotExpr)
	}

	// 引擎未配置：评估为 false 并留下诊断
	bare := NewEvaluator(nil)
	result = bare.EvaluateConditions(
		[]ConditionNode{node(ConditionExpression, OpEval, `"true"`)},
		testOrder(), testCustomer())
	if result.Matched || len(result.Diagnostics) == 0 {
		t.Error("expression without an engine must be false with a diagnostic")
	}
}

func TestEvaluateRuleGroupsAreAnded(t *testing.T) {
	e := NewEvaluator(nil)
	rule := &CampaignRule{
		TriggerConditions:     []ConditionNode{node(ConditionOrderValue, OpGte, `200`)},
		EligibilityConditions: []ConditionNode{node(ConditionCustomerType, OpEq, `"new"`)},
		LocationConditions:    []ConditionNode{node(ConditionCountry, OpExact, `"US"`)},
		AttributionConditions: []ConditionNode{node(ConditionUTMSource, OpExact, `"newsletter"`)},
	}

	eval := e.EvaluateRule(rule, testOrder(), testCustomer())
	if !eval.Matched {
		t.Fatalf("all groups satisfied, rule must match (failed group %q)", eval.FailedGroup)
	}

	rule.LocationConditions = []ConditionNode{node(ConditionCountry, OpExact, `"DE"`)}
	eval = e.EvaluateRule(rule, testOrder(), testCustomer())
	if eval.Matched {
		t.Fatal("failing location group must fail the rule")
	}
	if eval.FailedGroup != "location" {
		t.Errorf("failed group = %q, want location", eval.FailedGroup)
	}
}
