// internal/service/campaign/domain/port/expression.go
package port

// ExpressionEngine 是表达式类条件的出站端口。
// 具体实现（CEL 引擎适配器）在 infrastructure/rule 中。
type ExpressionEngine interface {
	// Evaluate 对给定事实评估一条表达式，返回布尔结果。
	// 表达式本身不合法时返回 error（属于配置错误，不是评估为 false）。
	Evaluate(expression string, fact map[string]interface{}) (bool, error)
}
