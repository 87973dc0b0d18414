// Package apperr defines the domain error taxonomy shared by all core
// packages. Boundary layers match these with errors.As/errors.Is and map
// them to transport-level failure codes.
package apperr

import (
	"errors"
	"fmt"
)

// Lifecycle state violations.
var (
	// ErrNotAllowedInRegionalProject is returned when an operation that only
	// makes sense for ordinary projects is attempted against a regional one.
	ErrNotAllowedInRegionalProject = errors.New("this action is not allowed in a regional project")

	// ErrNotAllowedInProjectScenario is returned when an operation requires a
	// regional scenario but an ordinary project scenario was given.
	ErrNotAllowedInProjectScenario = errors.New("this action is not allowed in a project scenario")
)

// NotFound indicates a referenced row is absent.
type NotFound struct {
	Kind string
	ID   int64
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Kind, e.ID)
}

// NewNotFound creates a NotFound error for the given entity kind and id.
func NewNotFound(kind string, id int64) *NotFound {
	return &NotFound{Kind: kind, ID: id}
}

// NotFoundByParams indicates no row matched a parameter combination rather
// than a primary identifier.
type NotFoundByParams struct {
	Kind   string
	Params []any
}

func (e *NotFoundByParams) Error() string {
	return fmt.Sprintf("%s not found by params %v", e.Kind, e.Params)
}

// NewNotFoundByParams creates a NotFoundByParams error.
func NewNotFoundByParams(kind string, params ...any) *NotFoundByParams {
	return &NotFoundByParams{Kind: kind, Params: params}
}

// AlreadyExists indicates a duplicate was attempted, including a second
// scenario-local shadow of the same public entity.
type AlreadyExists struct {
	Kind string
	ID   int64
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s with id %d already exists", e.Kind, e.ID)
}

// NewAlreadyExists creates an AlreadyExists error.
func NewAlreadyExists(kind string, id int64) *AlreadyExists {
	return &AlreadyExists{Kind: kind, ID: id}
}

// AccessDenied indicates the caller may not read or edit the entity.
type AccessDenied struct {
	Kind string
	ID   int64
}

func (e *AccessDenied) Error() string {
	return fmt.Sprintf("access denied for %s with id %d", e.Kind, e.ID)
}

// NewAccessDenied creates an AccessDenied error.
func NewAccessDenied(kind string, id int64) *AccessDenied {
	return &AccessDenied{Kind: kind, ID: id}
}

// InvalidRequest indicates a malformed or self-contradictory request, such
// as supplying both a type filter and its parent-function filter.
type InvalidRequest struct {
	Reason string
}

func (e *InvalidRequest) Error() string {
	return e.Reason
}

// NewInvalidRequest creates an InvalidRequest error with the given reason.
func NewInvalidRequest(reason string) *InvalidRequest {
	return &InvalidRequest{Reason: reason}
}

// IsNotFound reports whether err is a NotFound or NotFoundByParams error.
func IsNotFound(err error) bool {
	var nf *NotFound
	var nfp *NotFoundByParams
	return errors.As(err, &nf) || errors.As(err, &nfp)
}
