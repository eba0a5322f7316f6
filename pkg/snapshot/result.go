package snapshot

// Result carries one probe's value. A degraded result holds the sentinel
// for its field plus the cause.
type Result[T any] struct {
	Value    T
	Degraded bool
	Err      error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Degrade[T any](sentinel T, err error) Result[T] {
	return Result[T]{Value: sentinel, Degraded: true, Err: err}
}
