package resources

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrDisposed            = errors.New("resource disposed")
	ErrDependencyViolation = errors.New("resource still has dependents")
	ErrGroupSealed         = errors.New("group is sealed")
	ErrUnknownKind         = errors.New("unknown resource kind")
)

// DependencyError is returned when disposing a resource that other live
// resources still depend on.
type DependencyError struct {
	Target     Handle
	Name       string
	Dependents []Handle
}

func (e *DependencyError) Error() string {
	deps := make([]string, len(e.Dependents))
	for i, d := range e.Dependents {
		deps[i] = d.String()
	}
	return fmt.Sprintf("cannot dispose %s %q: still used by %s", e.Target, e.Name, strings.Join(deps, ", "))
}

func (e *DependencyError) Unwrap() error { return ErrDependencyViolation }
