// Package fallback carries values that may have been produced by an
// approximation after an external provider failed.
package fallback

// Result is either an exact value or a degraded one with the reason the
// primary path was abandoned.
type Result[T any] struct {
	Value  T
	Reason string
	exact  bool
}

func Exact[T any](v T) Result[T] { return Result[T]{Value: v, exact: true} }

func Degraded[T any](v T, reason string) Result[T] {
	return Result[T]{Value: v, Reason: reason}
}

func (r Result[T]) IsExact() bool    { return r.exact }
func (r Result[T]) IsDegraded() bool { return !r.exact }
