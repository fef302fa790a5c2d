package graph

import "errors"

// ValidationError reports a structurally invalid graph definition.
// It is returned at creation time; nothing is stored when creation
// fails this way.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid graph: " + e.Message
}

// NotFoundError reports a lookup of an unknown graph, run, or tool.
//
// For graph and run lookups it is surfaced immediately with no state
// mutation. An unregistered tool discovered mid-run is not surfaced
// directly to the caller; it turns the run into status=error instead.
type NotFoundError struct {
	// Kind names what was looked up: "graph" or "run".
	Kind string

	// ID is the identifier that was not found.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return e.Kind + " '" + e.ID + "' not found"
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
