//go:build !js_eval

package stav

// NewJSEvaluator returns nil without the js_eval build tag; guard rules
// written in JavaScript need a build that carries the goja engine.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
