package stav

import (
	"math"
	"reflect"
)

// Identity is the default equality policy: bit-level identity. It is
// reflexive for floating point values (NaN equals itself) while keeping
// signed zero variants distinct; other comparable values use ==. Values that
// are not comparable never report equal. Comparability is checked per value,
// not per type, so a comparable struct carrying an uncomparable interface
// field reports not-equal instead of panicking.
func Identity[T any](a, b T) bool {
	ia, ib := any(a), any(b)
	switch av := ia.(type) {
	case float64:
		bv, ok := ib.(float64)
		return ok && math.Float64bits(av) == math.Float64bits(bv)
	case float32:
		bv, ok := ib.(float32)
		return ok && math.Float32bits(av) == math.Float32bits(bv)
	}
	if ia == nil || ib == nil {
		return ia == nil && ib == nil
	}
	va, vb := reflect.ValueOf(ia), reflect.ValueOf(ib)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

// Structural compares states structurally via reflect.DeepEqual. Unlike
// Identity it treats +0 and -0 as equal.
func Structural[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// RuleEquality builds an equality policy from a compiled rule evaluated over
// {next, prev}. Evaluation failures and non-true results report not-equal,
// so a broken rule degrades to extra writes rather than suppressed ones.
func RuleEquality[T any](rule CompiledRule) EqualityFn[T] {
	return func(a, b T) bool {
		if rule == nil {
			return false
		}
		result, err := rule.Evaluate(ChangeContext{Next: a, Prev: b})
		if err != nil {
			return false
		}
		return truthy(result)
	}
}

func truthy(value any) bool {
	v, ok := value.(bool)
	return ok && v
}
