package extract

// rule is one step of an extraction cascade. Cascades are evaluated in
// order and the first rule that reports ok wins.
type rule[T any] struct {
	name       string
	confidence float64
	fn         func(text string) (T, bool)
}

// firstMatch runs rules in order. A rule that panics is skipped.
func firstMatch[T any](text string, rules []rule[T]) (T, rule[T], bool) {
	for _, r := range rules {
		if v, ok := apply(r, text); ok {
			return v, r, true
		}
	}
	var zero T
	return zero, rule[T]{}, false
}

func apply[T any](r rule[T], text string) (v T, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	return r.fn(text)
}
