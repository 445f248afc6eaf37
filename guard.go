package stav

import (
	"fmt"
	"time"
)

// guarded wraps fn so it only fires when rule evaluates to true for the
// transition. Every evaluation is reported to the container's evaluator
// logger; failures suppress the listener rather than unwinding the write.
func (c *Container[T]) guarded(fn Listener[T], rule CompiledRule) Listener[T] {
	return func(next, prev T) {
		ctx := ChangeContext{
			Next:      next,
			Prev:      prev,
			Initial:   c.initial,
			Container: c.name,
		}
		engine := ruleEngineName(rule)
		start := time.Now()
		result, err := rule.Evaluate(ctx)
		duration := time.Since(start)
		err = wrapEvaluationError(engine, ruleExpression(rule), c.name, err)
		c.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
			Engine:    engine,
			Expr:      ruleExpression(rule),
			Container: c.name,
			Duration:  duration,
			Err:       err,
		})
		if err != nil || !truthy(result) {
			return
		}
		fn(next, prev)
	}
}

func ruleEngineName(rule CompiledRule) string {
	if rule == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", rule) {
	case "*stav.exprCompiledRule":
		return "expr"
	case "*stav.celCompiledRule":
		return "cel"
	case "*stav.jsCompiledRule":
		return "js"
	default:
		return "custom"
	}
}

func ruleExpression(rule CompiledRule) string {
	if described, ok := rule.(interface{ ruleExpression() string }); ok {
		return described.ruleExpression()
	}
	return ""
}
