package util

// Walk visits err and every error reachable from it by unwrapping,
// depth first. It follows standard Unwrap edges, single and multi,
// plus the Underlying and Cause edges of stackerr and pkg/errors.
// Walking stops, and true is returned, as soon as visit returns true.
func Walk(err error, visit func(error) bool) bool {
	if err == nil {
		return false
	}
	if visit(err) {
		return true
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			if Walk(sub, visit) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return Walk(e.Unwrap(), visit)
	case interface{ Underlying() error }:
		return Walk(e.Underlying(), visit)
	case interface{ Cause() error }:
		return Walk(e.Cause(), visit)
	}
	return false
}
