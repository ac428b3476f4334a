package domain

import "testing"

func TestConditionNodeValidate(t *testing.T) {
	cases := []struct {
		name    string
		node    ConditionNode
		wantErr bool
	}{
		{"numeric gte", node(ConditionOrderValue, OpGte, `200`), false},
		{"numeric string", node(ConditionOrderValue, OpGte, `"200"`), false},
		{"between", node(ConditionOrderValue, OpBetween, `[100, 500]`), false},
		{"between inverted bounds", node(ConditionOrderValue, OpBetween, `[500, 100]`), true},
		{"between single element", node(ConditionOrderValue, OpBetween, `[100]`), true},
		{"list", node(ConditionProduct, OpInList, `["prod-1"]`), false},
		{"comma separated list", node(ConditionProduct, OpInList, `"prod-1, prod-2"`), false},
		{"empty list", node(ConditionProduct, OpInList, `[]`), true},
		{"string exact", node(ConditionUTMSource, OpExact, `"newsletter"`), false},
		{"customer_type new", node(ConditionCustomerType, OpEq, `"new"`), false},
		{"customer_type invalid value", node(ConditionCustomerType, OpEq, `"vip"`), true},
		{"expression eval", node(ConditionExpression, OpEval, `"order_value > 100.0"`), false},
		{"unknown type", node("made_up", OpEq, `1`), true},
		{"operator not allowed for type", node(ConditionOrderValue, OpInList, `["x"]`), true},
		{"between on set type not allowed", node(ConditionProduct, OpBetween, `[1, 2]`), true},
		{"non-number for numeric op", node(ConditionOrderValue, OpGte, `"abc"`), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.node.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateConditionsReportsNodeIndex(t *testing.T) {
	nodes := []ConditionNode{
		node(ConditionOrderValue, OpGte, `100`),
		node(ConditionOrderValue, OpBetween, `[100]`),
	}
	err := ValidateConditions(nodes)
	if err == nil {
		t.Fatal("expected an error for the malformed second node")
	}
}
