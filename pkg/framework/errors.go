package framework

import "strings"

// runErrors joins independent runner failures into one error value.
// Each entry is already labeled with the runner that produced it.
type runErrors []error

// Unwrap lets errors.Is and errors.As see through the join.
func (e runErrors) Unwrap() []error { return e }

// Error implements error.
func (e runErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Aggregate folds errors into nil, the sole error, or a joined error.
// nil entries are skipped.
func Aggregate(errs ...error) error {
	var kept runErrors
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return kept
}
