// internal/service/campaign/infrastructure/rule/cel_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELEngine 是 port.ExpressionEngine 的 cel-go 实现。
// 表达式类条件留给商家写任意布尔组合，例如
// "order_value >= 100.0 && payment_method == 'credit_card'"。
// 编译结果按表达式文本缓存，同一条规则的表达式只编译一次。
type CELEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEngine 创建表达式引擎。变量集合与评估器打平的事实字段一一对应。
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("order_value", cel.DoubleType),
		cel.Variable("order_number", cel.IntType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("payment_method", cel.StringType),
		cel.Variable("shipping_country", cel.StringType),
		cel.Variable("utm_source", cel.StringType),
		cel.Variable("utm_medium", cel.StringType),
		cel.Variable("utm_campaign", cel.StringType),
		cel.Variable("lifetime_order_count", cel.IntType),
		cel.Variable("lifetime_spend", cel.DoubleType),
		cel.Variable("customer_tags", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 对给定事实评估一条表达式
func (e *CELEngine) Evaluate(expression string, fact map[string]interface{}) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(fact)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}
	result, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean, got %s", out.Type().TypeName())
	}
	return bool(result), nil
}

// program 返回表达式的编译结果，未命中缓存时编译并缓存
func (e *CELEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", issues.Err())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression program: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}
