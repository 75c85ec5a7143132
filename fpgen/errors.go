package fpgen

import "fmt"

// NetworkError is the base error for anything going wrong with the loaded
// Bayesian network: missing files, unparseable definitions, or an
// inference run that cannot complete.
type NetworkError struct {
	Msg string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidConstraints is raised when a user-supplied constraint isn't
// admissible: the value doesn't appear among a node's possibilities, or a
// dotted path doesn't resolve to any node.
type InvalidConstraints struct {
	*NetworkError
}

// Unwrap exposes the embedded NetworkError to errors.As/errors.Is,
// overriding the promoted NetworkError.Unwrap (which would skip straight
// to the wrapped cause and hide this level of the taxonomy).
func (e *InvalidConstraints) Unwrap() error { return e.NetworkError }

func newInvalidConstraints(format string, args ...any) *InvalidConstraints {
	return &InvalidConstraints{&NetworkError{Msg: fmt.Sprintf(format, args...)}}
}

// RestrictiveConstraints is raised when the combined evidence is jointly
// infeasible: no assignment satisfies every constraint at once.
type RestrictiveConstraints struct {
	*InvalidConstraints
}

func (e *RestrictiveConstraints) Unwrap() error { return e.InvalidConstraints }

func newRestrictiveConstraints(format string, args ...any) *RestrictiveConstraints {
	return &RestrictiveConstraints{newInvalidConstraints(format, args...)}
}

// InvalidWindowBounds is raised when WindowBounds constraints are inverted
// (a minimum above its maximum) or exclude every generated window size the
// network knows about.
type InvalidWindowBounds struct {
	*InvalidConstraints
}

func (e *InvalidWindowBounds) Unwrap() error { return e.InvalidConstraints }

func newInvalidWindowBounds(format string, args ...any) *InvalidWindowBounds {
	return &InvalidWindowBounds{newInvalidConstraints(format, args...)}
}

// InvalidNode is raised when a caller names a node that doesn't exist in
// the network.
type InvalidNode struct {
	*NetworkError
}

func (e *InvalidNode) Unwrap() error { return e.NetworkError }

func newInvalidNode(format string, args ...any) *InvalidNode {
	return &InvalidNode{&NetworkError{Msg: fmt.Sprintf(format, args...)}}
}

// NodePathError is raised when a caller names a sub-path inside a node's
// decoded value that doesn't exist.
type NodePathError struct {
	*InvalidNode
}

func (e *NodePathError) Unwrap() error { return e.InvalidNode }

func newNodePathError(format string, args ...any) *NodePathError {
	return &NodePathError{newInvalidNode(format, args...)}
}

// MissingRelease is raised when a required model asset cannot be fetched
// from the remote release store. Model asset download is a collaborator
// concern (see SPEC_FULL.md); this package never raises it itself, but
// keeps the type so callers handling the full error taxonomy can still
// type-switch or errors.As against it.
type MissingRelease struct {
	Msg string
}

func (e *MissingRelease) Error() string { return e.Msg }
