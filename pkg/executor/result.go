package executor

// Outcome is the result of one operation.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the operation succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// BatchResult is the result of ExecuteParallel.
//
// In ModeIndependent, Outcomes[i] belongs to ops[i]. In ModeAllOrNothing,
// Outcomes is nil and only AllSucceeded is meaningful.
type BatchResult[T any] struct {
	Mode         Mode
	Outcomes     []Outcome[T]
	AllSucceeded bool
}

// Len returns the number of outcomes.
func (r BatchResult[T]) Len() int {
	return len(r.Outcomes)
}

// Err returns the error of operation i, or nil.
func (r BatchResult[T]) Err(i int) error {
	if i < 0 || i >= len(r.Outcomes) {
		return nil
	}
	return r.Outcomes[i].Err
}

// Values returns every value in submission order; failed operations
// contribute their zero value.
func (r BatchResult[T]) Values() []T {
	values := make([]T, len(r.Outcomes))
	for i, o := range r.Outcomes {
		values[i] = o.Value
	}
	return values
}

// Failures returns the errors of failed operations in submission order.
func (r BatchResult[T]) Failures() []error {
	var failures []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failures = append(failures, o.Err)
		}
	}
	return failures
}

// Succeeded returns the number of successful operations.
func (r BatchResult[T]) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}
